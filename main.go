package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polehammer/pkg/agent"
	"polehammer/pkg/config"
	"polehammer/pkg/llm"
	_ "polehammer/pkg/llm/autoload" // registers LLM providers
	"polehammer/pkg/monitor"
	"polehammer/pkg/server"
	"polehammer/pkg/tools"
	"polehammer/pkg/tools/builtin"

	"github.com/sourcegraph/conc"
)

const (
	configFile  = "config.json"
	systemFile  = "system.json"
	defaultAddr = ":8080"
)

func main() {
	monitor.PrintBanner(os.Stdout)

	cfg, sys, err := config.Load(configFile, systemFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	monitor.SetupSlog(sys.LogLevel)

	cli := monitor.NewCLIMonitor()
	if err := cli.Start(); err != nil {
		slog.Warn("CLI monitor failed to start", "error", err)
	}
	defer cli.Stop()

	agents, err := buildAgents(cfg, sys, cli)
	if err != nil {
		slog.Error("Failed to build agents", "error", err)
		os.Exit(1)
	}

	addr := cfg.Server.Addr
	if addr == "" {
		addr = defaultAddr
	}
	srv := server.New(addr, agents)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("HTTP server stopped", "error", err)
			stop()
		}
	})
	wg.Go(func() {
		for range config.WatchConfig(ctx, configFile, systemFile) {
			reload(srv, cli)
		}
	})

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
	wg.Wait()
	slog.Info("Bye!")
}

// reload rebuilds every agent from disk. A broken configuration keeps the
// previous agents serving.
func reload(srv *server.Server, mon monitor.Monitor) {
	cfg, sys, err := config.Load(configFile, systemFile)
	if err != nil {
		slog.Error("Config reload failed, keeping current agents", "error", err)
		return
	}
	monitor.SetupSlog(sys.LogLevel)

	agents, err := buildAgents(cfg, sys, mon)
	if err != nil {
		slog.Error("Agent rebuild failed, keeping current agents", "error", err)
		return
	}
	srv.SetAgents(agents)
}

func buildAgents(cfg *config.Config, sys *config.SystemConfig, mon monitor.Monitor) (*agent.Set, error) {
	client, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		return nil, fmt.Errorf("init LLM client: %w", err)
	}

	catalog, err := builtin.Catalog(cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("init tools: %w", err)
	}

	engines := make([]*agent.Engine, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		prompt, err := cfg.ResolvePrompt(a)
		if err != nil {
			return nil, err
		}

		var reg *tools.Registry
		if sys.EnableTools && len(a.Tools) > 0 {
			if reg, err = catalog.Subset(a.Tools...); err != nil {
				return nil, fmt.Errorf("agent %s: %w", a.Name, err)
			}
		}

		maxTurns := sys.MaxTurns
		if a.MaxTurns > 0 {
			maxTurns = a.MaxTurns
		}

		engines = append(engines, agent.NewEngine(client,
			agent.WithName(a.Name),
			agent.WithSystemPrompt(prompt),
			agent.WithModel(a.Model),
			agent.WithTools(reg),
			agent.WithMaxTurns(maxTurns),
			agent.WithObserver(monitor.Observer{Monitor: mon}),
		))
		slog.Info("Agent ready", "agent", a.Name, "tools", reg.Names(), "max_turns", maxTurns)
	}
	return agent.NewSet(engines...)
}
