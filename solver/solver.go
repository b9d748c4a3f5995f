// Package solver defines the challenge-handler capability the ACME client
// consumes, and the adapter that exposes an implementation to go-acme/lego
// as a DNS-01 challenge provider.
package solver

import "context"

// Challenge carries the DNS-01 material for a single authorization.
type Challenge struct {
	// DNSHost is the fully-qualified name the TXT record must appear under,
	// e.g. "_acme-challenge.www.example.com".
	DNSHost string
	// DNSAuthorization is the exact value the TXT record must carry.
	DNSAuthorization string
}

// Solver is the capability a DNS-01 challenge handler implements.
//
// Set must not return success before the record is observably resolvable on
// real DNS infrastructure: the ACME client performs its own lookup right
// after Set returns, and a record that is merely accepted by the provider
// is not good enough.
type Solver interface {
	// Init is the registration hook invoked when the handler is attached to
	// the ACME client. Implementations holding no resources return nil.
	Init() error

	// Set publishes the challenge record and blocks until it is confirmed
	// resolvable, or fails with a propagation error.
	Set(ctx context.Context, ch Challenge) error

	// Get reports whether the challenge value is currently observable.
	// Absence is a normal outcome while the provider's update pipeline
	// drains; it is reported via ok=false, never as an error.
	Get(ctx context.Context, ch Challenge) (value string, ok bool, err error)

	// Remove deletes the challenge record. A record that is already gone
	// counts as success.
	Remove(ctx context.Context, ch Challenge) error

	// Shutdown releases any held resources.
	Shutdown() error
}
