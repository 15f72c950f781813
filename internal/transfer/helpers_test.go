package transfer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/dwarvesf/custody-backend/internal/emitter"
	"github.com/dwarvesf/custody-backend/internal/utils/webhook"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitter.Event
}

func (r *recordingEmitter) Emit(_ context.Context, event emitter.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) Close() error { return nil }

func (r *recordingEmitter) Types() []emitter.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitter.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// alertSink is an operator webhook endpoint that keeps what it receives.
type alertSink struct {
	server *httptest.Server
	mu     sync.Mutex
	alerts []webhook.Alert
}

func newAlertSink() *alertSink {
	s := &alertSink{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert webhook.Alert
		if err := json.NewDecoder(r.Body).Decode(&alert); err == nil {
			s.mu.Lock()
			s.alerts = append(s.alerts, alert)
			s.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return s
}

func (s *alertSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.alerts {
		out = append(out, a.Event)
	}
	return out
}

func (s *alertSink) Close() {
	s.server.Close()
}
