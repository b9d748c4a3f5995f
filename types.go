// Package acme decides when certificate collections need renewal and runs
// the renewal as a job against a pluggable DNS-01 challenge solver.
package acme

import "time"

// CertCollection is one certificate covering a set of domains, together
// with its key material. Collections are identified by their primary
// domain; the store keeps history rows per identifier and Get returns the
// newest.
type CertCollection struct {
	ID               int64     // populated on insert
	Identifier       string    // primary domain
	Domains          []string  // all covered domains, primary first
	Staging          bool      // issued by the staging CA
	CertificateChain string    // PEM encoded chain
	PrivateKey       string    // PEM encoded key (sensitive)
	IssuedAt         time.Time // UTC
	ExpiresAt        time.Time // UTC
}

// TimeFormat renders a timestamp the way the store persists it.
func TimeFormat(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// TimeParse is the inverse of TimeFormat.
func TimeParse(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
