package acme

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"
)

// RenewalWindow is how long before expiry a certificate is renewed.
const RenewalWindow = 7 * 24 * time.Hour

// ShouldRenew decides whether a new certificate is needed for the desired
// domain set. The reason string is meant for logs.
//
// The decision fails safe: a collection whose certificate cannot be parsed
// is renewed rather than trusted.
func ShouldRenew(domains []string, staging bool, existing *CertCollection) (bool, string) {
	if len(domains) == 0 {
		return false, "no domains requested"
	}
	if existing == nil {
		return true, "no existing certificate"
	}
	if existing.Staging != staging {
		return true, fmt.Sprintf("environment changed (staging %t -> %t)", existing.Staging, staging)
	}

	leaf, err := parseLeaf(existing.CertificateChain)
	if err != nil {
		return true, fmt.Sprintf("existing certificate unreadable: %v", err)
	}

	if until := time.Until(leaf.NotAfter); until <= RenewalWindow {
		return true, fmt.Sprintf("certificate expires %s", leaf.NotAfter.UTC().Format(time.RFC3339))
	}
	if !strings.EqualFold(leaf.Subject.CommonName, domains[0]) {
		return true, fmt.Sprintf("common name %q does not match primary domain %q", leaf.Subject.CommonName, domains[0])
	}
	if !sameDomainSet(leaf.DNSNames, domains) {
		return true, "certificate SANs do not cover the requested domains"
	}
	return false, "certificate still valid"
}

// parseLeaf decodes the first certificate of a PEM bundle.
func parseLeaf(chain string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(chain))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}

// sameDomainSet compares two domain lists as case-insensitive sets; order
// and duplicates carry no meaning.
func sameDomainSet(a, b []string) bool {
	setOf := func(in []string) map[string]struct{} {
		out := make(map[string]struct{}, len(in))
		for _, d := range in {
			out[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
		return out
	}
	sa, sb := setOf(a), setOf(b)
	if len(sa) != len(sb) {
		return false
	}
	for d := range sa {
		if _, ok := sb[d]; !ok {
			return false
		}
	}
	return true
}
