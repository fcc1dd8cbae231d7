package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/segfault-society/saathi"
	"github.com/segfault-society/saathi/logger"
)

func main() {
	// .env is optional, real deployments inject environment directly.
	if err := godotenv.Load(); err != nil {
		logger.L.Debug("no .env file loaded", "error", err)
	}

	cfg, err := saathi.LoadConfig()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	service, err := saathi.NewService(context.Background(), cfg)
	if err != nil {
		logger.L.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer service.Close()

	if service.Store != nil {
		startHealthSweep(service)
	}

	addr := cfg.Server.Addr()
	logger.L.Info("starting chat backend",
		"address", addr,
		"mode", cfg.Chat.Mode,
		"store", cfg.Store.Type,
		"model", cfg.LLM.Model,
	)
	if err := service.Server.Run(addr); err != nil {
		logger.L.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// startHealthSweep pings the session store on a schedule so a dead backend
// shows up in the logs before a user hits it.
func startHealthSweep(service *saathi.Service) {
	c := cron.New()
	_, err := c.AddFunc("@every 1m", func() {
		if err := service.Store.Ping(); err != nil {
			logger.L.Error("session store unreachable", "error", err)
			return
		}
		logger.L.Debug("session store healthy")
	})
	if err != nil {
		logger.L.Error("failed to schedule store health sweep", "error", err)
		return
	}
	c.Start()
}
