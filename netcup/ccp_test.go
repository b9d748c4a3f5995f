package netcup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCCP emulates the webservice endpoint: single URL, action dispatch,
// session ids handed out by login.
type fakeCCP struct {
	t *testing.T

	mu          sync.Mutex
	zones       map[string]bool        // domains answered by infoDnsZone
	emptyZones  map[string]bool        // domains answered with an empty object
	records     map[string][]DNSRecord // zone -> record set
	failLogin   bool
	failLogout  bool
	logoutCalls int
	updateCalls int
	nextID      int

	srv *httptest.Server
}

func newFakeCCP(t *testing.T) *fakeCCP {
	f := &fakeCCP{
		t:          t,
		zones:      map[string]bool{},
		emptyZones: map[string]bool{},
		records:    map[string][]DNSRecord{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCCP) client(t *testing.T) *Client {
	c, err := NewClient(testCreds, f.srv.URL, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return c
}

var testCreds = Credentials{
	CustomerNumber: "12345",
	APIKey:         "key",
	APIPassword:    "password",
}

func (f *fakeCCP) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string          `json:"action"`
		Param  json.RawMessage `json:"param"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("fake ccp: bad request body: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Action {
	case "login":
		if f.failLogin {
			writeEnvelope(w, 4013, "Login failed", nil)
			return
		}
		writeEnvelope(w, 2000, "Login successful", map[string]string{"apisessionid": "sess-1"})

	case "logout":
		f.logoutCalls++
		if f.failLogout {
			writeEnvelope(w, 4001, "Session expired", nil)
			return
		}
		writeEnvelope(w, 2000, "Logout successful", nil)

	case "infoDnsZone":
		domain := paramDomain(f.t, req.Param)
		if f.emptyZones[domain] {
			writeEnvelope(w, 2000, "", map[string]string{})
			return
		}
		if !f.zones[domain] {
			writeEnvelope(w, 4013, "Domain not found", nil)
			return
		}
		writeEnvelope(w, 2000, "", ZoneInfo{Name: domain, TTL: "300", Serial: "1"})

	case "infoDnsRecords":
		domain := paramDomain(f.t, req.Param)
		if !f.zones[domain] {
			writeEnvelope(w, 4013, "Domain not found", nil)
			return
		}
		writeEnvelope(w, 2000, "", map[string][]DNSRecord{"dnsrecords": f.records[domain]})

	case "updateDnsRecords":
		f.updateCalls++
		domain := paramDomain(f.t, req.Param)
		if !f.zones[domain] {
			writeEnvelope(w, 4013, "Domain not found", nil)
			return
		}
		var param struct {
			DNSRecordSet recordSet `json:"dnsrecordset"`
		}
		if err := json.Unmarshal(req.Param, &param); err != nil {
			f.t.Errorf("fake ccp: bad update param: %v", err)
			return
		}
		f.applyUpdate(domain, param.DNSRecordSet.DNSRecords)
		writeEnvelope(w, 2000, "", nil)

	default:
		writeEnvelope(w, 4001, "Unknown action", nil)
	}
}

func (f *fakeCCP) applyUpdate(domain string, updates []DNSRecord) {
	for _, u := range updates {
		if u.DeleteRecord {
			kept := f.records[domain][:0]
			for _, r := range f.records[domain] {
				if r.ID != u.ID {
					kept = append(kept, r)
				}
			}
			f.records[domain] = kept
			continue
		}
		f.nextID++
		u.ID = fmt.Sprintf("%d", f.nextID)
		f.records[domain] = append(f.records[domain], u)
	}
}

func paramDomain(t *testing.T, raw json.RawMessage) string {
	var p struct {
		DomainName string `json:"domainname"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Errorf("fake ccp: bad param: %v", err)
	}
	return p.DomainName
}

func writeEnvelope(w http.ResponseWriter, status int, short string, data any) {
	env := map[string]any{
		"statuscode":   status,
		"shortmessage": short,
		"longmessage":  "",
	}
	if data != nil {
		env["responsedata"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}
