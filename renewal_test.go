package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedPEM issues a throwaway certificate for renewal decisions.
func selfSignedPEM(t *testing.T, commonName string, dnsNames []string, notAfter time.Time) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     dnsNames,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func collectionWith(t *testing.T, cn string, sans []string, staging bool, notAfter time.Time) *CertCollection {
	t.Helper()
	return &CertCollection{
		Identifier:       cn,
		Domains:          sans,
		Staging:          staging,
		CertificateChain: selfSignedPEM(t, cn, sans, notAfter),
	}
}

func TestShouldRenew(t *testing.T) {
	farOut := time.Now().Add(60 * 24 * time.Hour)
	domains := []string{"example.com", "www.example.com"}

	tests := []struct {
		name     string
		domains  []string
		staging  bool
		existing func(t *testing.T) *CertCollection
		want     bool
	}{
		{
			name:     "no existing certificate",
			domains:  domains,
			existing: func(t *testing.T) *CertCollection { return nil },
			want:     true,
		},
		{
			name:    "valid certificate",
			domains: domains,
			existing: func(t *testing.T) *CertCollection {
				return collectionWith(t, "example.com", domains, false, farOut)
			},
			want: false,
		},
		{
			name:    "inside renewal window",
			domains: domains,
			existing: func(t *testing.T) *CertCollection {
				return collectionWith(t, "example.com", domains, false, time.Now().Add(6*24*time.Hour))
			},
			want: true,
		},
		{
			name:    "already expired",
			domains: domains,
			existing: func(t *testing.T) *CertCollection {
				return collectionWith(t, "example.com", domains, false, time.Now().Add(-time.Hour))
			},
			want: true,
		},
		{
			name:    "common name not the primary domain",
			domains: domains,
			existing: func(t *testing.T) *CertCollection {
				return collectionWith(t, "www.example.com", domains, false, farOut)
			},
			want: true,
		},
		{
			name:    "san set differs",
			domains: domains,
			existing: func(t *testing.T) *CertCollection {
				return collectionWith(t, "example.com", []string{"example.com"}, false, farOut)
			},
			want: true,
		},
		{
			name:    "san order and duplicates are irrelevant",
			domains: []string{"example.com", "www.example.com", "example.com"},
			existing: func(t *testing.T) *CertCollection {
				return collectionWith(t, "example.com", []string{"www.example.com", "example.com"}, false, farOut)
			},
			want: false,
		},
		{
			name:    "san case is irrelevant",
			domains: []string{"Example.COM"},
			existing: func(t *testing.T) *CertCollection {
				return collectionWith(t, "example.com", []string{"example.com"}, false, farOut)
			},
			want: false,
		},
		{
			name:    "staging flag changed",
			domains: domains,
			staging: true,
			existing: func(t *testing.T) *CertCollection {
				return collectionWith(t, "example.com", domains, false, farOut)
			},
			want: true,
		},
		{
			name:    "unparsable certificate renews",
			domains: domains,
			existing: func(t *testing.T) *CertCollection {
				return &CertCollection{Identifier: "example.com", CertificateChain: "not pem at all"}
			},
			want: true,
		},
		{
			name:     "no domains requested",
			domains:  nil,
			existing: func(t *testing.T) *CertCollection { return nil },
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ShouldRenew(tt.domains, tt.staging, tt.existing(t))
			assert.Equal(t, tt.want, got, "reason: %s", reason)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestShouldRenewSANCaseComparesCN(t *testing.T) {
	// common name comparison is case-insensitive too
	far := time.Now().Add(60 * 24 * time.Hour)
	existing := collectionWith(t, "EXAMPLE.com", []string{"example.com"}, false, far)
	renew, _ := ShouldRenew([]string{"example.com"}, false, existing)
	assert.False(t, renew)
}

func TestParseLeafRejectsForeignPEM(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	_, err = parseLeaf(keyPEM)
	assert.Error(t, err)
}
