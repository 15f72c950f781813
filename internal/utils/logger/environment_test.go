package logger

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ = Describe("Logger Environment", func() {
	DescribeTable("per environment configuration",
		func(build func() zap.Config, level zapcore.Level, encoding string, quiet bool) {
			cfg := build()

			Expect(cfg.Level.Level()).To(Equal(level))
			Expect(cfg.Encoding).To(Equal(encoding))
			Expect(cfg.DisableCaller).To(Equal(quiet))
			Expect(cfg.DisableStacktrace).To(Equal(quiet))
		},
		Entry("production keeps callers and stacks for incident review", newProductionLoggerConfig, zap.InfoLevel, "json", false),
		Entry("staging drops callers and stacks", newStagingLoggerConfig, zap.InfoLevel, "json", true),
		Entry("development logs reconcile debug lines to the console", newDevelopmentLoggerConfig, zap.DebugLevel, "console", true),
		Entry("test mirrors production", newTestLoggerConfig, zap.InfoLevel, "json", false),
	)

	It("writes production and staging logs to stdout", func() {
		for _, cfg := range []zap.Config{newProductionLoggerConfig(), newStagingLoggerConfig()} {
			Expect(cfg.Development).To(BeFalse())
			Expect(cfg.OutputPaths).To(Equal([]string{"stdout"}))
			Expect(cfg.ErrorOutputPaths).To(Equal([]string{"stderr"}))
		}
	})

	It("keeps test runs silent", func() {
		cfg := newTestLoggerConfig()
		Expect(cfg.OutputPaths).To(BeEmpty())
		Expect(cfg.ErrorOutputPaths).To(BeEmpty())
		Expect(newProductionLoggerConfig().OutputPaths).To(Equal([]string{"stdout"}))
	})

	It("colors levels only in development", func() {
		cfg := newDevelopmentLoggerConfig()
		Expect(cfg.Development).To(BeTrue())
		Expect(cfg.EncoderConfig.EncodeLevel).NotTo(BeNil())
		Expect(cfg.OutputPaths).To(Equal([]string{"stdout"}))
	})
})
