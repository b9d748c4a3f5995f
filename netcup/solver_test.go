package netcup

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvernetz/netcup-acme/dnsprobe"
	"github.com/kvernetz/netcup-acme/solver"
)

// fakeProber answers from a fixed record table instead of real DNS.
type fakeProber struct {
	visible    map[string]string // host -> value
	awaitErr   error
	awaitCalls int
	authCalls  int
}

func (p *fakeProber) AwaitRecord(ctx context.Context, host, expected string, resolvers []string, maxAttempts int, interval time.Duration) error {
	p.awaitCalls++
	if p.awaitErr != nil {
		return p.awaitErr
	}
	if p.visible[host] != expected {
		return fmt.Errorf("%w: %s not visible after %d attempts", dnsprobe.ErrPropagationTimeout, host, maxAttempts)
	}
	return nil
}

func (p *fakeProber) Observe(ctx context.Context, host, expected string, resolvers []string) bool {
	return p.visible[host] == expected
}

func (p *fakeProber) AuthoritativeResolvers(ctx context.Context, zone string) []string {
	p.authCalls++
	return []string{"198.51.100.1:53"}
}

func newTestSolver(t *testing.T, f *fakeCCP, prober Prober, cfg Config) *Solver {
	t.Helper()
	cfg.Credentials = testCreds
	cfg.Endpoint = f.srv.URL
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 2
	}
	s, err := NewSolver(f.client(t), prober, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

var testChallenge = solver.Challenge{
	DNSHost:          "_acme-challenge.www.example.com",
	DNSAuthorization: "token-value",
}

func TestSolverSetWritesAndConfirms(t *testing.T) {
	f := newFakeCCP(t)
	f.zones["example.com"] = true
	prober := &fakeProber{visible: map[string]string{
		testChallenge.DNSHost: testChallenge.DNSAuthorization,
	}}

	s := newTestSolver(t, f, prober, Config{})
	require.NoError(t, s.Set(context.Background(), testChallenge))

	records := f.records["example.com"]
	require.Len(t, records, 1)
	assert.Equal(t, "TXT", records[0].Type)
	assert.Equal(t, "_acme-challenge.www", records[0].Hostname)
	assert.Equal(t, testChallenge.DNSAuthorization, records[0].Destination)

	// authoritative tier plus public tier
	assert.Equal(t, 1, prober.authCalls)
	assert.Equal(t, 2, prober.awaitCalls)
}

func TestSolverSetPublicOnlySkipsAuthoritative(t *testing.T) {
	f := newFakeCCP(t)
	f.zones["example.com"] = true
	prober := &fakeProber{visible: map[string]string{
		testChallenge.DNSHost: testChallenge.DNSAuthorization,
	}}

	s := newTestSolver(t, f, prober, Config{Strategy: StrategyPublicOnly})
	require.NoError(t, s.Set(context.Background(), testChallenge))
	assert.Equal(t, 0, prober.authCalls)
	assert.Equal(t, 1, prober.awaitCalls)
}

func TestSolverSetPropagationTimeout(t *testing.T) {
	f := newFakeCCP(t)
	f.zones["example.com"] = true
	prober := &fakeProber{visible: map[string]string{}}

	s := newTestSolver(t, f, prober, Config{Strategy: StrategyPublicOnly})
	err := s.Set(context.Background(), testChallenge)
	require.Error(t, err)
	assert.ErrorIs(t, err, dnsprobe.ErrPropagationTimeout)
	assert.ErrorContains(t, err, testChallenge.DNSHost)
}

func TestSolverSetProviderState(t *testing.T) {
	f := newFakeCCP(t)
	f.zones["example.com"] = true
	prober := &fakeProber{}

	s := newTestSolver(t, f, prober, Config{Strategy: StrategyProviderState, PollIntervalSeconds: 1})
	require.NoError(t, s.Set(context.Background(), testChallenge))
	// confirmation came from the provider listing, not DNS
	assert.Equal(t, 0, prober.awaitCalls)
}

func TestSolverGetAbsenceIsNotAnError(t *testing.T) {
	f := newFakeCCP(t)
	f.zones["example.com"] = true
	prober := &fakeProber{visible: map[string]string{}}

	s := newTestSolver(t, f, prober, Config{})
	value, ok, err := s.Get(context.Background(), testChallenge)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)

	prober.visible[testChallenge.DNSHost] = testChallenge.DNSAuthorization
	value, ok, err = s.Get(context.Background(), testChallenge)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testChallenge.DNSAuthorization, value)
}

func TestSolverSetGetRemoveCycle(t *testing.T) {
	f := newFakeCCP(t)
	f.zones["example.com"] = true
	prober := &fakeProber{visible: map[string]string{}}
	s := newTestSolver(t, f, prober, Config{})

	ch := solver.Challenge{
		DNSHost:          "_acme-challenge.foo.example.com",
		DNSAuthorization: "tok1",
	}

	// nothing published yet
	_, ok, err := s.Get(context.Background(), ch)
	require.NoError(t, err)
	assert.False(t, ok)

	// record becomes visible once propagation finishes
	prober.visible[ch.DNSHost] = ch.DNSAuthorization
	require.NoError(t, s.Set(context.Background(), ch))

	value, ok, err := s.Get(context.Background(), ch)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok1", value)

	require.NoError(t, s.Remove(context.Background(), ch))
	assert.Empty(t, f.records["example.com"])

	delete(prober.visible, ch.DNSHost)
	_, ok, err = s.Get(context.Background(), ch)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSolverRemoveDeletesExactMatches(t *testing.T) {
	f := newFakeCCP(t)
	f.zones["example.com"] = true
	f.records["example.com"] = []DNSRecord{
		{ID: "1", Hostname: "_acme-challenge.www", Type: "TXT", Destination: testChallenge.DNSAuthorization},
		{ID: "2", Hostname: "_acme-challenge.www", Type: "TXT", Destination: "other-token"},
		{ID: "3", Hostname: "www", Type: "A", Destination: "192.0.2.1"},
	}

	s := newTestSolver(t, f, &fakeProber{}, Config{})
	require.NoError(t, s.Remove(context.Background(), testChallenge))

	remaining := f.records["example.com"]
	require.Len(t, remaining, 2)
	for _, r := range remaining {
		assert.NotEqual(t, "1", r.ID)
	}
}

func TestSolverRemoveNoMatchesIsSuccess(t *testing.T) {
	f := newFakeCCP(t)
	f.zones["example.com"] = true
	f.records["example.com"] = []DNSRecord{
		{ID: "3", Hostname: "www", Type: "A", Destination: "192.0.2.1"},
	}

	s := newTestSolver(t, f, &fakeProber{}, Config{})
	require.NoError(t, s.Remove(context.Background(), testChallenge))
	assert.Equal(t, 0, f.updateCalls)
	assert.Len(t, f.records["example.com"], 1)
}

func TestSolverLifecycle(t *testing.T) {
	f := newFakeCCP(t)
	s := newTestSolver(t, f, &fakeProber{}, Config{})
	assert.NoError(t, s.Init())
	assert.NoError(t, s.Shutdown())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"defaults", Config{Credentials: testCreds}, ""},
		{"known strategy", Config{Credentials: testCreds, Strategy: StrategyProviderState}, ""},
		{"unknown strategy", Config{Credentials: testCreds, Strategy: "guess"}, "unknown strategy"},
		{"negative attempts", Config{Credentials: testCreds, MaxAttempts: -1}, "max_attempts"},
		{"missing credentials", Config{}, "customer_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
