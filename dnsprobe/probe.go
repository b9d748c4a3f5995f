// Package dnsprobe confirms DNS changes by polling explicit resolvers.
//
// DNS providers acknowledge record updates before their authoritative
// nameservers answer for them, and neither the provider nor public DNS
// offers a notification mechanism, so confirmation is a synchronous polling
// loop: query, compare, sleep, repeat, give up after a fixed attempt budget.
package dnsprobe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"
)

// PublicResolvers are well-known recursive resolvers. They serve as the
// second confirmation tier and as the fallback whenever authoritative
// nameservers cannot be discovered.
var PublicResolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// ErrPropagationTimeout is returned when a record does not become visible
// within the attempt budget.
var ErrPropagationTimeout = errors.New("dnsprobe: propagation timeout")

const queryTimeout = 5 * time.Second

// Prober issues TXT, NS and address lookups against explicit resolvers.
// The zero value is not usable; construct with New.
type Prober struct {
	logger *slog.Logger

	// lookup seams, replaced in tests
	lookupTXT  func(ctx context.Context, resolver, host string) ([]string, error)
	lookupNS   func(ctx context.Context, resolver, host string) ([]string, error)
	lookupAddr func(ctx context.Context, resolver, host string) ([]string, error)
}

// New creates a Prober logging through logger.
func New(logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		logger:     logger.With("component", "dnsprobe"),
		lookupTXT:  lookupTXT,
		lookupNS:   lookupNS,
		lookupAddr: lookupAddr,
	}
}

// AwaitRecord polls the given resolvers until a TXT lookup for host returns
// expected, or the attempt budget is exhausted. It returns nil as soon as
// one attempt matches; no further attempt is made after a match. After
// maxAttempts failed attempts it returns an error wrapping
// ErrPropagationTimeout that names the host and the attempt count.
// maxAttempts below 1 is treated as 1; at least one lookup always happens.
func (p *Prober) AwaitRecord(ctx context.Context, host, expected string, resolvers []string, maxAttempts int, interval time.Duration) error {
	if len(resolvers) == 0 {
		resolvers = PublicResolvers
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if p.Observe(ctx, host, expected, resolvers) {
			p.logger.Debug("record confirmed", "host", host, "attempt", attempt)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dnsprobe: await %s: %w", host, err)
		}
		if attempt == maxAttempts {
			break
		}
		p.logger.Debug("record not visible yet", "host", host, "attempt", attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("dnsprobe: await %s: %w", host, ctx.Err())
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("%w: %s not visible after %d attempts", ErrPropagationTimeout, host, maxAttempts)
}

// Observe performs one polling round: a TXT lookup against each resolver in
// turn, reporting whether any returned value equals expected. Lookup
// failures (typically the name not existing yet) count as absence.
func (p *Prober) Observe(ctx context.Context, host, expected string, resolvers []string) bool {
	for _, resolver := range resolvers {
		values, err := p.lookupTXT(ctx, resolver, host)
		if err != nil {
			continue
		}
		for _, v := range values {
			if v == expected {
				return true
			}
		}
	}
	return false
}

// AuthoritativeResolvers discovers the nameserver addresses authoritative
// for zone. NS discovery and address resolution each fall back to the
// public resolvers independently: a caching recursive resolver may hold a
// stale negative answer that the authoritative servers do not.
func (p *Prober) AuthoritativeResolvers(ctx context.Context, zone string) []string {
	var nameservers []string
	for _, resolver := range PublicResolvers {
		ns, err := p.lookupNS(ctx, resolver, zone)
		if err == nil && len(ns) > 0 {
			nameservers = ns
			break
		}
	}
	if len(nameservers) == 0 {
		p.logger.Debug("no nameservers discovered, falling back to public resolvers", "zone", zone)
		return PublicResolvers
	}

	var out []string
	for _, ns := range nameservers {
		for _, resolver := range PublicResolvers {
			addrs, err := p.lookupAddr(ctx, resolver, ns)
			if err != nil || len(addrs) == 0 {
				continue
			}
			for _, a := range addrs {
				out = append(out, net.JoinHostPort(a, "53"))
			}
			break
		}
	}
	if len(out) == 0 {
		p.logger.Debug("nameservers did not resolve, falling back to public resolvers", "zone", zone)
		return PublicResolvers
	}
	return out
}

func exchange(ctx context.Context, resolver, host string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	c := &dns.Client{Timeout: queryTimeout}
	in, _, err := c.ExchangeContext(ctx, m, resolver)
	if err != nil {
		return nil, fmt.Errorf("dnsprobe: query %s %s @%s: %w", dns.TypeToString[qtype], host, resolver, err)
	}
	if in.Truncated {
		c.Net = "tcp"
		in, _, err = c.ExchangeContext(ctx, m, resolver)
		if err != nil {
			return nil, fmt.Errorf("dnsprobe: query %s %s @%s over tcp: %w", dns.TypeToString[qtype], host, resolver, err)
		}
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dnsprobe: query %s %s @%s: %s", dns.TypeToString[qtype], host, resolver, dns.RcodeToString[in.Rcode])
	}
	return in, nil
}

func lookupTXT(ctx context.Context, resolver, host string) ([]string, error) {
	in, err := exchange(ctx, resolver, host, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			// character-string segments of one record form one value
			var v string
			for _, s := range txt.Txt {
				v += s
			}
			values = append(values, v)
		}
	}
	return values, nil
}

func lookupNS(ctx context.Context, resolver, host string) ([]string, error) {
	in, err := exchange(ctx, resolver, host, dns.TypeNS)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rr := range in.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			names = append(names, dns.Fqdn(ns.Ns))
		}
	}
	return names, nil
}

func lookupAddr(ctx context.Context, resolver, host string) ([]string, error) {
	var addrs []string
	if in, err := exchange(ctx, resolver, host, dns.TypeA); err == nil {
		for _, rr := range in.Answer {
			if a, ok := rr.(*dns.A); ok {
				addrs = append(addrs, a.A.String())
			}
		}
	}
	if in, err := exchange(ctx, resolver, host, dns.TypeAAAA); err == nil {
		for _, rr := range in.Answer {
			if aaaa, ok := rr.(*dns.AAAA); ok {
				addrs = append(addrs, aaaa.AAAA.String())
			}
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("dnsprobe: no addresses for %s", host)
	}
	return addrs, nil
}
