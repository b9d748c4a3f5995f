package acme

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"

	rip_db "github.com/caasmo/restinpieces/db"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/kvernetz/netcup-acme/solver"
)

// CertRenewalHandler keeps the configured certificate collections current.
// It runs as a queue job handler.
type CertRenewalHandler struct {
	config *Config
	store  CollectionStore
	logger *slog.Logger
}

// NewCertRenewalHandler creates a new handler instance.
func NewCertRenewalHandler(cfg *Config, store CollectionStore, logger *slog.Logger) *CertRenewalHandler {
	if cfg == nil || store == nil || logger == nil {
		panic("NewCertRenewalHandler: received nil config, store, or logger")
	}
	return &CertRenewalHandler{
		config: cfg,
		store:  store,
		logger: logger.With("job_handler", "cert_renewal"),
	}
}

// acmeUser implements lego's registration.User interface.
type acmeUser struct {
	email        string
	registration *registration.Resource
	privateKey   crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.privateKey }

// Handle walks the configured collections and renews the ones that need it.
// A failing collection does not stop the rest; all failures are joined into
// the returned error so the queue can retry.
func (h *CertRenewalHandler) Handle(ctx context.Context, job rip_db.Job) error {
	h.logger.Info("starting certificate renewal run", "job_id", job.ID, "collections", len(h.config.Collections))

	var errs []error
	for _, col := range h.config.Collections {
		if err := h.renewCollection(ctx, col); err != nil {
			h.logger.Error("collection renewal failed", "identifier", col.Domains[0], "error", err)
			errs = append(errs, fmt.Errorf("collection %s: %w", col.Domains[0], err))
		}
	}
	return errors.Join(errs...)
}

func (h *CertRenewalHandler) renewCollection(ctx context.Context, col CollectionConfig) error {
	identifier := col.Domains[0]
	logger := h.logger.With("identifier", identifier)

	existing, err := h.store.Get(identifier)
	if err != nil && !errors.Is(err, ErrCollectionNotFound) {
		return fmt.Errorf("load existing collection: %w", err)
	}

	renew, reason := ShouldRenew(col.Domains, col.Staging, existing)
	if !renew {
		logger.Info("renewal not needed", "reason", reason)
		return nil
	}
	logger.Info("renewing certificate", "reason", reason, "domains", col.Domains, "staging", col.Staging)

	accountKey, err := certcrypto.ParsePEMPrivateKey([]byte(h.config.AccountPrivateKey))
	if err != nil {
		return fmt.Errorf("parse ACME account private key: %w", err)
	}

	user := acmeUser{email: h.config.Email, privateKey: accountKey}
	legoConfig := lego.NewConfig(&user)
	legoConfig.CADirURL = h.config.DirectoryURL(col.Staging)
	legoConfig.Certificate.KeyType = certcrypto.EC256

	legoClient, err := lego.NewClient(legoConfig)
	if err != nil {
		return fmt.Errorf("create ACME client: %w", err)
	}

	sol, err := NewSolver(h.config.Solver, h.config, logger)
	if err != nil {
		return fmt.Errorf("build solver %q: %w", h.config.Solver, err)
	}
	if err := sol.Init(); err != nil {
		return fmt.Errorf("init solver %q: %w", h.config.Solver, err)
	}
	defer func() {
		if err := sol.Shutdown(); err != nil {
			logger.Warn("solver shutdown failed", "error", err)
		}
	}()

	provider := solver.NewProvider(sol, 0, 0)
	if err := legoClient.Challenge.SetDNS01Provider(provider, dns01.AddDNSTimeout(solver.DefaultTimeout)); err != nil {
		return fmt.Errorf("set DNS-01 provider: %w", err)
	}

	if user.registration == nil {
		reg, err := legoClient.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return fmt.Errorf("ACME registration for %s: %w", user.email, err)
		}
		user.registration = reg
	}

	resource, err := legoClient.Certificate.Obtain(certificate.ObtainRequest{
		Domains: col.Domains,
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("obtain certificate for %v: %w", col.Domains, err)
	}
	logger.Info("certificate obtained", "certificate_url", resource.CertURL)

	collection, err := collectionFromResource(identifier, col, resource)
	if err != nil {
		return err
	}
	if err := h.store.Save(collection); err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	logger.Info("collection saved", "expires_at", TimeFormat(collection.ExpiresAt))
	return nil
}

// collectionFromResource builds the store row for an obtained certificate,
// taking the validity window from the leaf itself.
func collectionFromResource(identifier string, col CollectionConfig, resource *certificate.Resource) (CertCollection, error) {
	leaf, err := parseLeaf(string(resource.Certificate))
	if err != nil {
		return CertCollection{}, fmt.Errorf("parse obtained certificate: %w", err)
	}
	return CertCollection{
		Identifier:       identifier,
		Domains:          col.Domains,
		Staging:          col.Staging,
		CertificateChain: string(resource.Certificate),
		PrivateKey:       string(resource.PrivateKey),
		IssuedAt:         leaf.NotBefore.UTC(),
		ExpiresAt:        leaf.NotAfter.UTC(),
	}, nil
}
