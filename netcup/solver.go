package netcup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kvernetz/netcup-acme/dnsprobe"
	"github.com/kvernetz/netcup-acme/solver"
)

// Strategy selects how Set confirms that a written record has propagated.
type Strategy string

const (
	// StrategyAuthoritativeThenPublic waits for the record on the zone's
	// authoritative nameservers first, then additionally on public
	// resolvers. The default.
	StrategyAuthoritativeThenPublic Strategy = "authoritative-then-public"
	// StrategyPublicOnly polls public resolvers only.
	StrategyPublicOnly Strategy = "public-only"
	// StrategyProviderState polls the provider's own record listing until
	// it reports the record, without touching DNS.
	StrategyProviderState Strategy = "provider-state"
)

const (
	// DefaultMaxAttempts bounds each confirmation tier.
	DefaultMaxAttempts = 30
	// DefaultPollInterval separates confirmation attempts.
	DefaultPollInterval = 10 * time.Second
)

// Config configures the challenge solver.
type Config struct {
	Credentials

	// Endpoint overrides the webservice URL, empty for production.
	Endpoint string `toml:"endpoint"`
	// Strategy selects the propagation confirmation mode, empty for the
	// default.
	Strategy Strategy `toml:"strategy"`
	// MaxAttempts bounds each confirmation tier, 0 for the default.
	MaxAttempts int `toml:"max_attempts"`
	// PollIntervalSeconds separates confirmation attempts, 0 for the
	// default.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// Validate checks credentials and the strategy name.
func (c Config) Validate() error {
	if err := c.Credentials.Validate(); err != nil {
		return err
	}
	switch c.Strategy {
	case "", StrategyAuthoritativeThenPublic, StrategyPublicOnly, StrategyProviderState:
	default:
		return fmt.Errorf("netcup: unknown strategy %q", c.Strategy)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("netcup: max_attempts cannot be negative")
	}
	if c.PollIntervalSeconds < 0 {
		return fmt.Errorf("netcup: poll_interval_seconds cannot be negative")
	}
	return nil
}

func (c Config) strategy() Strategy {
	if c.Strategy == "" {
		return StrategyAuthoritativeThenPublic
	}
	return c.Strategy
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts == 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

func (c Config) pollInterval() time.Duration {
	if c.PollIntervalSeconds == 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Prober is the DNS surface the solver polls for confirmation. Satisfied by
// *dnsprobe.Prober.
type Prober interface {
	AwaitRecord(ctx context.Context, host, expected string, resolvers []string, maxAttempts int, interval time.Duration) error
	Observe(ctx context.Context, host, expected string, resolvers []string) bool
	AuthoritativeResolvers(ctx context.Context, zone string) []string
}

// Solver provisions DNS-01 challenge records in netcup-hosted zones and
// confirms their propagation before reporting success.
type Solver struct {
	client *Client
	prober Prober
	cfg    Config
	logger *slog.Logger
}

// NewSolver builds a solver from an already-constructed client and prober.
func NewSolver(client *Client, prober Prober, cfg Config, logger *slog.Logger) (*Solver, error) {
	if client == nil || prober == nil {
		return nil, fmt.Errorf("netcup: solver requires a client and a prober")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{
		client: client,
		prober: prober,
		cfg:    cfg,
		logger: logger.With("solver", "netcup"),
	}, nil
}

// NewSolverFromConfig wires up the default client and prober.
func NewSolverFromConfig(cfg Config, logger *slog.Logger) (*Solver, error) {
	client, err := NewClient(cfg.Credentials, cfg.Endpoint, logger)
	if err != nil {
		return nil, err
	}
	return NewSolver(client, dnsprobe.New(logger), cfg, logger)
}

var _ solver.Solver = (*Solver)(nil)

// Init implements solver.Solver. The solver holds no resources beyond the
// HTTP client.
func (s *Solver) Init() error { return nil }

// Shutdown implements solver.Solver.
func (s *Solver) Shutdown() error { return nil }

// Set writes the challenge TXT record and blocks until the configured
// strategy confirms it. A record accepted by the provider but not yet
// visible on DNS is not success; the ACME server resolves the name itself
// immediately afterwards.
func (s *Solver) Set(ctx context.Context, ch solver.Challenge) error {
	var zone Zone
	err := s.client.WithSession(ctx, func(ctx context.Context, sess *Session) error {
		var err error
		zone, err = sess.FindZone(ctx, ch.DNSHost)
		if err != nil {
			return err
		}
		record := DNSRecord{
			Hostname:    zone.RelativeName,
			Type:        "TXT",
			Destination: ch.DNSAuthorization,
		}
		return sess.UpdateDNSRecords(ctx, zone.Name, []DNSRecord{record})
	})
	if err != nil {
		return fmt.Errorf("netcup: set %s: %w", ch.DNSHost, err)
	}
	s.logger.Info("challenge record written", "host", ch.DNSHost, "zone", zone.Name)

	if err := s.confirm(ctx, zone, ch); err != nil {
		return fmt.Errorf("netcup: set %s: %w", ch.DNSHost, err)
	}
	s.logger.Info("challenge record confirmed", "host", ch.DNSHost, "strategy", s.cfg.strategy())
	return nil
}

// confirm runs the configured propagation check. The authoritative and
// public tiers are additive: a record visible on the zone's own nameservers
// may still be negatively cached by the recursors the ACME server uses.
func (s *Solver) confirm(ctx context.Context, zone Zone, ch solver.Challenge) error {
	attempts := s.cfg.maxAttempts()
	interval := s.cfg.pollInterval()

	switch s.cfg.strategy() {
	case StrategyPublicOnly:
		return s.prober.AwaitRecord(ctx, ch.DNSHost, ch.DNSAuthorization, dnsprobe.PublicResolvers, attempts, interval)
	case StrategyProviderState:
		return s.awaitProviderState(ctx, zone, ch, attempts, interval)
	default:
		auth := s.prober.AuthoritativeResolvers(ctx, zone.Name)
		if err := s.prober.AwaitRecord(ctx, ch.DNSHost, ch.DNSAuthorization, auth, attempts, interval); err != nil {
			return err
		}
		return s.prober.AwaitRecord(ctx, ch.DNSHost, ch.DNSAuthorization, dnsprobe.PublicResolvers, attempts, interval)
	}
}

// awaitProviderState polls the provider's record listing until it reports
// the challenge record. Each poll opens its own session; sessions are not
// held across waits.
func (s *Solver) awaitProviderState(ctx context.Context, zone Zone, ch solver.Challenge, maxAttempts int, interval time.Duration) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		found, err := s.recordPresent(ctx, zone, ch)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("%w: %s not reported by provider after %d attempts", dnsprobe.ErrPropagationTimeout, ch.DNSHost, maxAttempts)
}

func (s *Solver) recordPresent(ctx context.Context, zone Zone, ch solver.Challenge) (bool, error) {
	var found bool
	err := s.client.WithSession(ctx, func(ctx context.Context, sess *Session) error {
		records, err := sess.InfoDNSRecords(ctx, zone.Name)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return nil
			}
			return err
		}
		for _, r := range records {
			if r.Type == "TXT" && r.Hostname == zone.RelativeName && r.Destination == ch.DNSAuthorization {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// Get reports whether the challenge value is currently observable. Absence
// is a normal state while the provider's pipeline drains and is never an
// error.
func (s *Solver) Get(ctx context.Context, ch solver.Challenge) (string, bool, error) {
	if s.cfg.strategy() == StrategyProviderState {
		var zone Zone
		err := s.client.WithSession(ctx, func(ctx context.Context, sess *Session) error {
			var err error
			zone, err = sess.FindZone(ctx, ch.DNSHost)
			return err
		})
		if err != nil {
			return "", false, fmt.Errorf("netcup: get %s: %w", ch.DNSHost, err)
		}
		found, err := s.recordPresent(ctx, zone, ch)
		if err != nil {
			return "", false, fmt.Errorf("netcup: get %s: %w", ch.DNSHost, err)
		}
		if !found {
			return "", false, nil
		}
		return ch.DNSAuthorization, true, nil
	}

	if s.prober.Observe(ctx, ch.DNSHost, ch.DNSAuthorization, dnsprobe.PublicResolvers) {
		return ch.DNSAuthorization, true, nil
	}
	return "", false, nil
}

// Remove deletes the challenge TXT record. A record that is already gone,
// including a zone listing the provider refuses to return, counts as
// success.
func (s *Solver) Remove(ctx context.Context, ch solver.Challenge) error {
	err := s.client.WithSession(ctx, func(ctx context.Context, sess *Session) error {
		zone, err := sess.FindZone(ctx, ch.DNSHost)
		if err != nil {
			return err
		}

		records, err := sess.InfoDNSRecords(ctx, zone.Name)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				s.logger.Debug("record listing unavailable, nothing to clean", "zone", zone.Name, "error", err)
				return nil
			}
			return err
		}

		var doomed []DNSRecord
		for _, r := range records {
			if r.Type == "TXT" && r.Hostname == zone.RelativeName && r.Destination == ch.DNSAuthorization {
				r.DeleteRecord = true
				doomed = append(doomed, r)
			}
		}
		if len(doomed) == 0 {
			return nil
		}
		return sess.UpdateDNSRecords(ctx, zone.Name, doomed)
	})
	if err != nil {
		return fmt.Errorf("netcup: remove %s: %w", ch.DNSHost, err)
	}
	return nil
}
