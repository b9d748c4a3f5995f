// Command install-certificate copies the newest certificate for an
// identifier from the history store into the application's secure config,
// so the server picks it up on its next config load.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/caasmo/restinpieces"
	"github.com/caasmo/restinpieces/config"
	dbz "github.com/caasmo/restinpieces/db/zombiezen"
	"github.com/pelletier/go-toml/v2"

	acme "github.com/kvernetz/netcup-acme"
	"github.com/kvernetz/netcup-acme/zombiezen"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	dbPathFlag := flag.String("dbpath", "", "Path to the SQLite database file (required)")
	ageIdentityPathFlag := flag.String("age-key", "", "Path to the age identity file (private key 'AGE-SECRET-KEY-1...') (required)")
	identifierFlag := flag.String("identifier", "", "Primary domain of the collection to install (required)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -dbpath <db-file> -age-key <identity-file> -identifier <domain>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Installs the newest certificate for a collection into the application configuration.\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *dbPathFlag == "" || *ageIdentityPathFlag == "" || *identifierFlag == "" {
		flag.Usage()
		os.Exit(1)
	}

	logger.Info("creating sqlite database pool", "path", *dbPathFlag)
	pool, err := restinpieces.NewZombiezenPool(*dbPathFlag)
	if err != nil {
		logger.Error("failed to create database pool", "db_path", *dbPathFlag, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Error("error closing database pool", "error", err)
		}
	}()

	store, err := zombiezen.NewStore(pool)
	if err != nil {
		logger.Error("failed to create certificate store", "error", err)
		os.Exit(1)
	}

	logger.Info("loading newest certificate collection", "identifier", *identifierFlag)
	col, err := store.Get(*identifierFlag)
	if err != nil {
		logger.Error("failed to load certificate collection", "identifier", *identifierFlag, "error", err)
		os.Exit(1)
	}
	logger.Info("collection loaded", "identifier", col.Identifier, "expires_at", acme.TimeFormat(col.ExpiresAt))

	dbImpl, err := dbz.New(pool)
	if err != nil {
		logger.Error("failed to instantiate zombiezen db from pool", "error", err)
		os.Exit(1)
	}

	secureCfg, err := config.NewSecureStoreAge(dbImpl, *ageIdentityPathFlag)
	if err != nil {
		logger.Error("failed to instantiate secure config (age)", "age_key_path", *ageIdentityPathFlag, "error", err)
		os.Exit(1)
	}

	logger.Info("loading application configuration", "scope", config.ScopeApplication)
	appTomlData, _, err := secureCfg.Get(config.ScopeApplication, 0)
	if err != nil {
		logger.Error("failed to load application config", "scope", config.ScopeApplication, "error", err)
		os.Exit(1)
	}
	if len(appTomlData) == 0 {
		logger.Error("no application configuration found", "scope", config.ScopeApplication)
		os.Exit(1)
	}

	var appCfg config.Config
	if err := toml.Unmarshal(appTomlData, &appCfg); err != nil {
		logger.Error("failed to unmarshal application config", "scope", config.ScopeApplication, "error", err)
		os.Exit(1)
	}

	appCfg.Server.CertData = col.CertificateChain
	appCfg.Server.KeyData = col.PrivateKey

	updatedTomlBytes, err := toml.Marshal(appCfg)
	if err != nil {
		logger.Error("failed to marshal updated application config", "error", err)
		os.Exit(1)
	}

	description := fmt.Sprintf("Installed TLS cert/key for %s (expires %s)", col.Identifier, acme.TimeFormat(col.ExpiresAt))
	if err := secureCfg.Save(config.ScopeApplication, updatedTomlBytes, "toml", description); err != nil {
		logger.Error("failed to save updated application config", "scope", config.ScopeApplication, "error", err)
		os.Exit(1)
	}

	logger.Info("application configuration updated with certificate data", "identifier", col.Identifier)
}
