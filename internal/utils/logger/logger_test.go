package logger

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dwarvesf/custody-backend/internal/types/environments"
)

type fatalHook struct {
	called bool
}

func (h *fatalHook) OnWrite(_ *zapcore.CheckedEntry, _ []zapcore.Field) {
	h.called = true
}

// observed swaps the zap core for an in-memory one at level.
func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{wrappedLogger: zap.New(core)}, logs
}

var _ = Describe("Logger", func() {
	Describe("#New", func() {
		DescribeTable("builds a logger for every environment",
			func(env environments.Environment, debug bool) {
				logger := New(env)
				Expect(logger).NotTo(BeNil())
				Expect(logger.wrappedLogger.Core().Enabled(zapcore.InfoLevel)).To(BeTrue())
				Expect(logger.wrappedLogger.Core().Enabled(zapcore.DebugLevel)).To(Equal(debug))
			},
			Entry("production", environments.Production, false),
			Entry("staging", environments.Staging, false),
			Entry("development", environments.Development, true),
			Entry("test", environments.Test, false),
			Entry("unknown falls back to production", environments.Environment("unknown"), false),
		)
	})

	Describe("levels", func() {
		It("records the transfer fields on each entry", func() {
			logger, logs := observed(zapcore.DebugLevel)

			logger.Debug("[Reconciler][Reconcile] stale job", map[string]string{"transfer_id": "42", "job_tx_id": "a1"})
			logger.Info("[TransferService][SubmitTxID] transaction hash attached", map[string]string{"transfer_id": "42", "tx_id": "b2"})
			logger.Warn("[TransferService][Flag] transfer needs manual review", map[string]string{"reason": "AddressMismatch"})
			logger.Error("[Accountant][QueueReferralIncome] failed to queue payouts", map[string]string{"error": "db down"})

			entries := logs.AllUntimed()
			Expect(entries).To(HaveLen(4))
			Expect(entries[0].Level).To(Equal(zapcore.DebugLevel))
			Expect(entries[1].Message).To(Equal("[TransferService][SubmitTxID] transaction hash attached"))
			Expect(entries[1].ContextMap()).To(Equal(map[string]interface{}{"transfer_id": "42", "tx_id": "b2"}))
			Expect(entries[2].Level).To(Equal(zapcore.WarnLevel))
			Expect(entries[2].ContextMap()).To(HaveKeyWithValue("reason", "AddressMismatch"))
			Expect(entries[3].Level).To(Equal(zapcore.ErrorLevel))
		})

		It("drops debug lines below the configured level", func() {
			logger, logs := observed(zapcore.InfoLevel)
			logger.Debug("[Reconciler][Reconcile] stale job", map[string]string{"transfer_id": "42"})
			Expect(logs.Len()).To(BeZero())
		})

		It("logs without fields and ignores extra maps", func() {
			logger, logs := observed(zapcore.InfoLevel)
			logger.Info("[Server][Start] listening")
			logger.Info("[PayoutJob][Run] batch done", map[string]string{"paid": "3"}, map[string]string{"ignored": "x"})

			entries := logs.AllUntimed()
			Expect(entries[0].Context).To(BeEmpty())
			Expect(entries[1].ContextMap()).To(Equal(map[string]interface{}{"paid": "3"}))
		})
	})

	Describe("#With", func() {
		It("stamps every child entry with the scope fields", func() {
			logger, logs := observed(zapcore.InfoLevel)
			child := logger.With(map[string]string{"transfer_id": "42"})
			Expect(child).NotTo(BeIdenticalTo(logger))

			child.Info("[Reconciler][Reconcile] transfer completed", map[string]string{"tx_id": "c3"})
			logger.Info("[Pool][ScanDue] scan finished")

			entries := logs.AllUntimed()
			Expect(entries[0].ContextMap()).To(Equal(map[string]interface{}{"transfer_id": "42", "tx_id": "c3"}))
			Expect(entries[1].ContextMap()).NotTo(HaveKey("transfer_id"))
		})
	})

	Describe("#Fatal", func() {
		It("hands the entry to the fatal hook", func() {
			hook := &fatalHook{}
			logger := &Logger{wrappedLogger: zap.New(
				zapcore.NewCore(
					zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
					zapcore.AddSync(&bytes.Buffer{}),
					zap.FatalLevel,
				),
				zap.WithFatalHook(hook),
			)}

			logger.Fatal("[Server][loadSecrets] vault unreachable", map[string]string{"vault_addr": "http://vault:8200"})
			Expect(hook.called).To(BeTrue())
		})
	})

	Describe("#transformStrMapToFields", func() {
		It("turns each pair into a string field", func() {
			fields := transformStrMapToFields(map[string]string{"transfer_id": "42"})
			Expect(fields).To(ConsistOf(zap.String("transfer_id", "42")))
			Expect(transformStrMapToFields(map[string]string{})).To(BeEmpty())
		})
	})
})
