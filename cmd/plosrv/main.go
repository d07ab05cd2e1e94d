package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/sixmax/plosrv/internal/protocol"
	"github.com/sixmax/plosrv/internal/randutil"
	"github.com/sixmax/plosrv/internal/records"
	"github.com/sixmax/plosrv/internal/server"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"plosrv.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Address to bind to (overrides config)"`
	Port     int    `short:"p" long:"port" help:"Port to listen on (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	Seed     int64  `long:"seed" help:"Deterministic RNG seed, 0 for random"`
	BotFill  int    `long:"bot-fill" help:"Fill tables up to this many seats with bots (overrides config)"`
}

func main() {
	ctx := kong.Parse(&CLI)

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		ctx.Exit(1)
	}

	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.Port != 0 {
		cfg.Server.Port = CLI.Port
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.BotFill != 0 {
		cfg.Game.BotFill = CLI.BotFill
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		ctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	seed := CLI.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := randutil.New(seed)

	logger.Info("starting plosrv",
		"addr", cfg.Addr(),
		"stakes", len(cfg.Stakes),
		"botFill", cfg.Game.BotFill)

	var sink protocol.RecordSink
	if cfg.Game.HandHistoryFile != "" {
		fileSink, err := records.NewFileSink(cfg.Game.HandHistoryFile, logger, 0)
		if err != nil {
			logger.Error("failed to open hand history file", "path", cfg.Game.HandHistoryFile, "err", err)
			ctx.Exit(1)
		}
		defer fileSink.Close()
		sink = fileSink
	}

	srv := server.New(cfg, logger, quartz.NewReal(), rng, sink)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Error("server failed", "err", err)
		ctx.Exit(1)
	}
}
