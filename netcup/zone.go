package netcup

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Zone is the managed zone a host name belongs to, split into the zone name
// the webservice knows and the remainder relative to it.
type Zone struct {
	// Name is the zone as registered with the provider, e.g. "example.com".
	Name string
	// RelativeName is the host part relative to the zone, "@" for the apex.
	RelativeName string
}

// FQDN reassembles the full host name the zone was resolved from.
func (z Zone) FQDN() string {
	if z.RelativeName == "@" || z.RelativeName == "" {
		return z.Name
	}
	return z.RelativeName + "." + z.Name
}

// FindZone determines which of the account's zones fullHost belongs to by
// probing infoDnsZone with progressively shorter label suffixes, most
// specific first. An API-level error means "not this zone" and the probe
// continues; transport errors abort the search.
//
// If no probe succeeds the last two labels are assumed to form the zone.
// That guess is wrong for multi-label public suffixes like co.uk, which is
// an accepted limitation: resolving those correctly needs a public-suffix
// list, and the probe loop already handles every zone the account actually
// manages.
func (s *Session) FindZone(ctx context.Context, fullHost string) (Zone, error) {
	host := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(fullHost), "."))
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return Zone{}, fmt.Errorf("netcup: cannot derive a zone from %q", fullHost)
	}

	for i := 1; i <= len(labels)-2; i++ {
		candidate := strings.Join(labels[i:], ".")
		info, err := s.InfoDNSZone(ctx, candidate)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				continue
			}
			return Zone{}, err
		}
		// the webservice answers success with an empty object for some
		// unknown domains instead of an error
		if info.Name == "" {
			continue
		}
		return Zone{
			Name:         candidate,
			RelativeName: strings.Join(labels[:i], "."),
		}, nil
	}

	zone := Zone{
		Name:         strings.Join(labels[len(labels)-2:], "."),
		RelativeName: strings.Join(labels[:len(labels)-2], "."),
	}
	if zone.RelativeName == "" {
		zone.RelativeName = "@"
	}
	s.client.logger.Debug("zone probe exhausted, assuming last two labels", "host", host, "zone", zone.Name)
	return zone, nil
}
