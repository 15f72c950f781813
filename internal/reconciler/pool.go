package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/monitoring"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

type job struct {
	transferID uint
	txID       string
}

// Pool runs reconciliations on a fixed set of workers. A transfer already
// queued or running is not queued again.
type Pool struct {
	reconciler *Reconciler
	jobs       chan job
	workers    int
	timeout    time.Duration
	logger     *logger.Logger
	jobMetrics *monitoring.BackgroundJobMetrics

	mu       sync.Mutex
	inflight map[uint]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(reconciler *Reconciler, appConfig *config.AppConfig, logger *logger.Logger, jobMetrics *monitoring.BackgroundJobMetrics) *Pool {
	cfg := appConfig.Reconcile
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = workers
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		reconciler: reconciler,
		jobs:       make(chan job, queueSize),
		workers:    workers,
		timeout:    timeout,
		logger:     logger,
		jobMetrics: jobMetrics,
		inflight:   map[uint]struct{}{},
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	p.logger.Info("[ReconcilePool][Start] workers started", map[string]string{
		"workers": uintStr(uint(p.workers)),
	})
}

// Stop stops accepting jobs, cancels running ones and waits for workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// Enqueue reports false when the transfer is already queued or running, the
// queue is full, or the pool is stopped.
func (p *Pool) Enqueue(transferID uint, txID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, ok := p.inflight[transferID]; ok {
		return false
	}

	select {
	case p.jobs <- job{transferID: transferID, txID: txID}:
		p.inflight[transferID] = struct{}{}
		return true
	default:
		p.logger.Warn("[ReconcilePool][Enqueue] queue full, left for the next scan", map[string]string{
			"transfer_id": uintStr(transferID),
		})
		return false
	}
}

// ScanDue queues every transfer whose next check is due and reports how
// many were queued.
func (p *Pool) ScanDue(ctx context.Context) (int, error) {
	r := p.reconciler
	due, err := r.store.Transfer.ListDue(r.repo.DB(ctx), r.now(), cap(p.jobs))
	if err != nil {
		return 0, errors.Wrap(err, "list due transfers")
	}

	perType := map[model.TransferType]int{
		model.TransferTypeDeposit:    0,
		model.TransferTypeWithdrawal: 0,
	}
	queued := 0
	for _, t := range due {
		perType[t.Type]++
		if p.Enqueue(t.ID, t.TxIDValue()) {
			queued++
		}
	}
	for kind, n := range perType {
		p.jobMetrics.SetDueTransfers(string(kind), n)
	}

	if len(due) > 0 {
		p.logger.Info("[ReconcilePool][ScanDue] due transfers queued", map[string]string{
			"due":    uintStr(uint(len(due))),
			"queued": uintStr(uint(queued)),
		})
	}
	return queued, nil
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer p.done(j.transferID)
	if p.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	outcome, err := p.reconciler.Reconcile(ctx, j.transferID, j.txID)
	if err != nil {
		p.logger.Error("[ReconcilePool][Run] reconciliation failed", map[string]string{
			"transfer_id": uintStr(j.transferID),
			"tx_id":       j.txID,
			"error":       err.Error(),
		})
		return
	}
	p.logger.Debug("[ReconcilePool][Run] reconciled", map[string]string{
		"transfer_id": uintStr(j.transferID),
		"outcome":     string(outcome),
	})
}

func (p *Pool) done(transferID uint) {
	p.mu.Lock()
	delete(p.inflight, transferID)
	p.mu.Unlock()
}
