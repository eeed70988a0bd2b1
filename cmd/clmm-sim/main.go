// clmm-sim replays a scripted pair session from a scenario file and writes
// the resulting state, step amounts and event stream as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/defistate/clmm-go/engine"
	"github.com/defistate/clmm-go/scenario"
)

func main() {
	root := &cobra.Command{
		Use:          "clmm-sim",
		Short:        "Concentrated-liquidity pair simulator",
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <scenario.json>",
		Short: "Replay a scenario against a fresh pair",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	runCmd.Flags().String("config", "", "pair config YAML overriding the scenario header")
	runCmd.Flags().String("out", "", "write the result JSON to this path (default stdout)")
	runCmd.Flags().Bool("metrics", false, "append a dump of the Prometheus metrics")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type runConfig struct {
	Config   string
	Out      string
	Metrics  bool
	LogLevel string
}

// loadRunConfig merges flags and CLMM_-prefixed environment variables.
func loadRunConfig(flags *pflag.FlagSet) (runConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("CLMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return runConfig{}, fmt.Errorf("bind flags: %w", err)
	}
	return runConfig{
		Config:   v.GetString("config"),
		Out:      v.GetString("out"),
		Metrics:  v.GetBool("metrics"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// applyPairConfig overlays a YAML pair config on the scenario header. Only
// the keys present in the file are overridden.
func applyPairConfig(path string, s *scenario.Scenario) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("pair config: %w", err)
	}
	if v.IsSet("fee") {
		s.Fee = v.GetUint64("fee")
	}
	if v.IsSet("tick-spacing") {
		s.TickSpacing = v.GetInt("tick-spacing")
	}
	if v.IsSet("owner") {
		s.Owner = v.GetString("owner")
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	if cfg.Config != "" {
		if err := applyPairConfig(cfg.Config, s); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	runner, err := scenario.NewRunner(s, &zapLogger{logger.Sugar()}, engine.NewMetrics(registry))
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	out := struct {
		*scenario.Result
		Metrics []metricSample `json:"metrics,omitempty"`
	}{Result: result}

	if cfg.Metrics {
		out.Metrics, err = gatherMetrics(registry)
		if err != nil {
			return err
		}
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')

	if cfg.Out == "" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	return os.WriteFile(cfg.Out, encoded, 0o644)
}

type metricSample struct {
	Name  string  `json:"name"`
	Op    string  `json:"op,omitempty"`
	Value float64 `json:"value"`
}

func gatherMetrics(registry *prometheus.Registry) ([]metricSample, error) {
	families, err := registry.Gather()
	if err != nil {
		return nil, err
	}
	var samples []metricSample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			sample := metricSample{Name: mf.GetName()}
			for _, l := range m.GetLabel() {
				if l.GetName() == "op" {
					sample.Op = l.GetValue()
				}
			}
			switch {
			case m.GetCounter() != nil:
				sample.Value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sample.Value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sample.Value = float64(m.GetHistogram().GetSampleCount())
			}
			samples = append(samples, sample)
		}
	}
	return samples, nil
}

// zapLogger adapts a sugared zap logger to the engine's logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
