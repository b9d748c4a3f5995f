package netcup

import (
	"context"
	"fmt"
)

// DNSRecord is one record of a zone's record set, in the wire shape the
// webservice uses. The id is assigned by the provider; a record submitted
// without one is created. Setting DeleteRecord removes the record on the
// next update.
type DNSRecord struct {
	ID           string `json:"id,omitempty"`
	Hostname     string `json:"hostname"`
	Type         string `json:"type"`
	Priority     string `json:"priority,omitempty"`
	Destination  string `json:"destination"`
	DeleteRecord bool   `json:"deleterecord,omitempty"`
	State        string `json:"state,omitempty"`
}

// ZoneInfo is the zone metadata returned by infoDnsZone.
type ZoneInfo struct {
	Name   string `json:"name"`
	TTL    string `json:"ttl"`
	Serial string `json:"serial"`
}

type domainParam struct {
	DomainName     string `json:"domainname"`
	CustomerNumber string `json:"customernumber"`
	APIKey         string `json:"apikey"`
	APISessionID   string `json:"apisessionid"`
}

type updateParam struct {
	domainParam
	DNSRecordSet recordSet `json:"dnsrecordset"`
}

type recordSet struct {
	DNSRecords []DNSRecord `json:"dnsrecords"`
}

func (s *Session) domainParam(domain string) domainParam {
	return domainParam{
		DomainName:     domain,
		CustomerNumber: s.client.creds.CustomerNumber,
		APIKey:         s.client.creds.APIKey,
		APISessionID:   s.id,
	}
}

// InfoDNSZone fetches zone metadata for a domain the account manages.
func (s *Session) InfoDNSZone(ctx context.Context, domain string) (*ZoneInfo, error) {
	data, err := s.client.call(ctx, "infoDnsZone", s.domainParam(domain))
	if err != nil {
		return nil, err
	}
	var info ZoneInfo
	if err := unmarshalData(data, &info); err != nil {
		return nil, fmt.Errorf("netcup: decode infoDnsZone for %s: %w", domain, err)
	}
	return &info, nil
}

// InfoDNSRecords lists the zone's current record set.
func (s *Session) InfoDNSRecords(ctx context.Context, domain string) ([]DNSRecord, error) {
	data, err := s.client.call(ctx, "infoDnsRecords", s.domainParam(domain))
	if err != nil {
		return nil, err
	}
	var out struct {
		DNSRecords []DNSRecord `json:"dnsrecords"`
	}
	if err := unmarshalData(data, &out); err != nil {
		return nil, fmt.Errorf("netcup: decode infoDnsRecords for %s: %w", domain, err)
	}
	return out.DNSRecords, nil
}

// UpdateDNSRecords submits record additions, changes and deletions for a
// zone. Records without an id are created; records flagged DeleteRecord are
// removed.
func (s *Session) UpdateDNSRecords(ctx context.Context, domain string, records []DNSRecord) error {
	_, err := s.client.call(ctx, "updateDnsRecords", updateParam{
		domainParam:  s.domainParam(domain),
		DNSRecordSet: recordSet{DNSRecords: records},
	})
	return err
}
