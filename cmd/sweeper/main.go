package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/database"
	"github.com/qs3c/autolaku_server/internal/pkg/cron"
	"github.com/qs3c/autolaku_server/internal/repository"
)

var (
	once     = flag.Bool("once", false, "Run a single sweep and exit")
	interval = flag.Duration("interval", time.Hour, "Sweep interval")
)

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	sweeper := cron.NewService(
		repository.NewSubscriptionRepository(db),
		repository.NewLicenseRepository(db),
		*interval,
	)

	if *once {
		subs, licenses := sweeper.RunOnce()
		log.Printf("Sweep finished: %d subscriptions, %d licenses expired", subs, licenses)
		return
	}

	go sweeper.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sweeper.Stop()
}
