package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/JaimeStill/healthplan-dw/internal/config"
	"github.com/JaimeStill/healthplan-dw/internal/dashboard"
)

func main() {
	manifestPath := flag.String("manifest", "", "Dashboard manifest YAML (default: built-in manifest)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}
	logger := cfg.Log.Logger(os.Stderr)

	if *manifestPath == "" {
		*manifestPath = cfg.Dashboard.Manifest
	}
	m, err := loadManifest(*manifestPath)
	if err != nil {
		log.Fatal(err)
	}

	creds := cfg.Dashboard.Credentials()
	if creds.Username == "" || creds.Password == "" {
		log.Fatal(errors.New("dashboard username and password required (HPDW_DASHBOARD_USERNAME, HPDW_DASHBOARD_PASSWORD)"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("provisioning dashboard", "url", creds.URL, "slug", m.Dashboard.Slug)

	res, err := dashboard.New(creds, logger).Provision(ctx, m)
	if err != nil {
		logger.Error("provisioning failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dashboard ready",
		"url", creds.URL+"/superset/dashboard/"+m.Dashboard.Slug+"/",
		"database_id", res.DatabaseID,
		"datasets", len(res.Datasets),
		"charts", len(res.Charts),
	)
}

func loadManifest(path string) (*dashboard.Manifest, error) {
	if path == "" {
		return dashboard.DefaultManifest()
	}
	return dashboard.LoadManifest(path)
}
