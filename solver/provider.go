package solver

import (
	"context"
	"time"

	"github.com/go-acme/lego/v4/challenge/dns01"
)

const (
	// DefaultTimeout is the budget lego grants its own propagation check
	// after Present returns. Set already blocks until the record is
	// confirmed, so this only covers lego's final verification round.
	DefaultTimeout = 10 * time.Minute

	// DefaultPollInterval is the interval lego waits between its checks.
	DefaultPollInterval = 10 * time.Second
)

// Provider adapts a Solver to lego's challenge.Provider contract.
type Provider struct {
	solver   Solver
	timeout  time.Duration
	interval time.Duration
}

// NewProvider wraps s for use with lego. Zero durations select the defaults.
func NewProvider(s Solver, timeout, interval time.Duration) *Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Provider{solver: s, timeout: timeout, interval: interval}
}

// Present publishes the TXT record for the authorization and blocks until
// the solver confirms it resolvable.
func (p *Provider) Present(domain, token, keyAuth string) error {
	info := dns01.GetChallengeInfo(domain, keyAuth)
	return p.solver.Set(context.Background(), Challenge{
		DNSHost:          dns01.UnFqdn(info.EffectiveFQDN),
		DNSAuthorization: info.Value,
	})
}

// CleanUp removes the TXT record once the authorization is settled.
func (p *Provider) CleanUp(domain, token, keyAuth string) error {
	info := dns01.GetChallengeInfo(domain, keyAuth)
	return p.solver.Remove(context.Background(), Challenge{
		DNSHost:          dns01.UnFqdn(info.EffectiveFQDN),
		DNSAuthorization: info.Value,
	})
}

// Timeout tells lego how long to wait for its own propagation check.
func (p *Provider) Timeout() (timeout, interval time.Duration) {
	return p.timeout, p.interval
}
