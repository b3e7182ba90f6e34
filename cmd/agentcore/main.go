// Command agentcore loads a runtime configuration, registers the configured
// model agents and runs one trading consensus round, printing the result as
// JSON.
//
//	export OPENAI_API_KEY="your-key-here"
//	agentcore -config agentcore.toml -symbol BTCUSD -context '{"price": 65000}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"

	"github.com/tradetaper/agentcore"
	"github.com/tradetaper/agentcore/config"
	"github.com/tradetaper/agentcore/consensus"
	"github.com/tradetaper/agentcore/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a .toml or .yaml configuration file")
		symbol     = flag.String("symbol", "BTCUSD", "symbol to run the consensus round for")
		marketJSON = flag.String("context", "", "market context as a JSON object")
		health     = flag.Bool("health", false, "print the runtime health report instead of voting")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *symbol, *marketJSON, *health); err != nil {
		log.Fatalf("agentcore: %v", err)
	}
}

func run(ctx context.Context, configPath, symbol, marketJSON string, health bool) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	logger := logging.New(cfg.LoggingConfig())

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.ApplicationName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Logger:          profilerLogger{logger},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
		})
		if err != nil {
			return fmt.Errorf("start profiler: %w", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	var marketContext map[string]any
	if marketJSON != "" {
		if err := json.Unmarshal([]byte(marketJSON), &marketContext); err != nil {
			return fmt.Errorf("parse -context: %w", err)
		}
	}

	rt, err := agentcore.NewFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Agent.ShutdownGrace.Std()+5*time.Second)
		defer cancel()
		if err := rt.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	if health {
		return printJSON(rt.Health(ctx))
	}

	if len(rt.Registry.ByCapability(consensus.TradePredictionCapability)) == 0 {
		return errors.New("no agents with the trade-prediction capability are configured")
	}

	prediction, resp, err := rt.TradingConsensus(ctx, symbol, marketContext)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"prediction": prediction,
		"consensus":  resp,
		"cache":      rt.Cache.EfficiencyReport(),
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// profilerLogger routes profiler output into the structured logger.
type profilerLogger struct{ l logging.Logger }

func (p profilerLogger) Infof(format string, args ...any)  { p.l.Info(fmt.Sprintf(format, args...)) }
func (p profilerLogger) Debugf(format string, args ...any) { p.l.Debug(fmt.Sprintf(format, args...)) }
func (p profilerLogger) Errorf(format string, args ...any) { p.l.Error(fmt.Sprintf(format, args...)) }
