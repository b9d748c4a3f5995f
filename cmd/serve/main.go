// Command serve runs the renewal handler as a recurring job inside a
// restinpieces application. The renewal configuration is read from the
// app's secure config store; the certificate history shares the app's
// SQLite pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/caasmo/restinpieces"

	acme "github.com/kvernetz/netcup-acme"
	"github.com/kvernetz/netcup-acme/zombiezen"
)

func main() {
	dbPath := flag.String("db", "", "Path to the SQLite DB (used by framework AND certificate history)")
	ageKeyPath := flag.String("age-key", "", "Path to the age identity (private key) file (required)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -db <db-path> -age-key <id-path>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Start the application server with scheduled certificate renewal.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *dbPath == "" || *ageKeyPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	dbPool, err := restinpieces.NewZombiezenPool(*dbPath)
	if err != nil {
		slog.Error("failed to create database pool", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbPool.Close(); err != nil {
			slog.Error("error closing database pool", "error", err)
		}
	}()

	app, srv, err := restinpieces.New(
		restinpieces.WithZombiezenPool(dbPool),
		restinpieces.WithAgeKeyPath(*ageKeyPath),
	)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	logger := app.Logger()

	logger.Info("loading renewal configuration", "scope", acme.ConfigScope)
	tomlData, _, err := app.ConfigStore().Get(acme.ConfigScope, 0)
	if err != nil {
		logger.Error("failed to load renewal config", "scope", acme.ConfigScope, "error", err)
		os.Exit(1)
	}
	if len(tomlData) == 0 {
		logger.Error("renewal config is empty", "scope", acme.ConfigScope)
		os.Exit(1)
	}

	renewalCfg, err := acme.ParseConfig(tomlData)
	if err != nil {
		logger.Error("invalid renewal config", "scope", acme.ConfigScope, "error", err)
		os.Exit(1)
	}

	store, err := zombiezen.NewStore(dbPool)
	if err != nil {
		logger.Error("failed to create certificate store", "error", err)
		os.Exit(1)
	}
	if err := store.Migrate(context.Background()); err != nil {
		logger.Error("failed to migrate certificate store", "error", err)
		os.Exit(1)
	}

	handler := acme.NewCertRenewalHandler(renewalCfg, store, logger)
	if err := srv.AddJobHandler(acme.JobTypeCertRenewal, handler); err != nil {
		logger.Error("failed to register renewal job handler", "job_type", acme.JobTypeCertRenewal, "error", err)
		os.Exit(1)
	}
	logger.Info("registered renewal job handler", "job_type", acme.JobTypeCertRenewal)

	srv.Run()

	slog.Info("server shut down gracefully")
}
