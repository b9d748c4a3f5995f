// Package netcup talks to the Netcup CCP DNS webservice and implements the
// DNS-01 challenge handler on top of it.
//
// The webservice is a single JSON endpoint dispatching on an action name.
// Every call is wrapped in `{action, param}` and answered with
// `{statuscode, shortmessage, longmessage, responsedata}`. All record
// operations require a session id obtained via the login action; sessions
// are cheap and short-lived, so each logical operation opens its own.
package netcup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultEndpoint is the production CCP webservice URL.
const DefaultEndpoint = "https://ccp.netcup.net/run/webservice/servers/endpoint.php?JSON"

const httpTimeout = 30 * time.Second

// Credentials authenticate a CCP API login.
type Credentials struct {
	CustomerNumber string `toml:"customer_number" env:"NETCUP_CUSTOMER_NUMBER"`
	APIKey         string `toml:"api_key" env:"NETCUP_API_KEY"`
	APIPassword    string `toml:"api_password" env:"NETCUP_API_PASSWORD"`
}

// Validate checks that all three credential parts are present.
func (c Credentials) Validate() error {
	if c.CustomerNumber == "" {
		return fmt.Errorf("netcup: customer_number cannot be empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("netcup: api_key cannot be empty")
	}
	if c.APIPassword == "" {
		return fmt.Errorf("netcup: api_password cannot be empty")
	}
	return nil
}

// LogValue keeps the key and password out of log output.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("customer_number", c.CustomerNumber),
		slog.String("api_key", "[redacted]"),
		slog.String("api_password", "[redacted]"),
	)
}

// APIError is a webservice response outside the success band. Call sites
// that treat "not found" as a normal outcome match it with errors.As; any
// other failure from a call is a transport problem and stays an ordinary
// error.
type APIError struct {
	Action       string
	StatusCode   int
	ShortMessage string
	LongMessage  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("netcup: %s failed with status %d: %s (%s)", e.Action, e.StatusCode, e.ShortMessage, e.LongMessage)
}

type request struct {
	Action string `json:"action"`
	Param  any    `json:"param"`
}

type response struct {
	StatusCode   int             `json:"statuscode"`
	ShortMessage string          `json:"shortmessage"`
	LongMessage  string          `json:"longmessage"`
	ResponseData json.RawMessage `json:"responsedata"`
}

// Client posts actions to a CCP webservice endpoint.
type Client struct {
	endpoint string
	creds    Credentials
	http     *http.Client
	logger   *slog.Logger
}

// NewClient validates the credentials and returns a client for the given
// endpoint. An empty endpoint selects DefaultEndpoint.
func NewClient(creds Credentials, endpoint string, logger *slog.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		creds:    creds,
		http:     &http.Client{Timeout: httpTimeout},
		logger:   logger.With("component", "netcup"),
	}, nil
}

// call posts one action and decodes the response envelope. Status codes in
// [2000, 3000) are success; 2000 is plain success and the rest of the band
// covers created/updated variants. Anything else becomes an *APIError.
func (c *Client) call(ctx context.Context, action string, param any) (json.RawMessage, error) {
	body, err := json.Marshal(request{Action: action, Param: param})
	if err != nil {
		return nil, fmt.Errorf("netcup: marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("netcup: build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netcup: %s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("netcup: read %s response: %w", action, err)
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("netcup: decode %s response: %w", action, err)
	}

	if env.StatusCode < 2000 || env.StatusCode >= 3000 {
		return nil, &APIError{
			Action:       action,
			StatusCode:   env.StatusCode,
			ShortMessage: env.ShortMessage,
			LongMessage:  env.LongMessage,
		}
	}

	c.logger.Debug("api call succeeded", "action", action, "statuscode", env.StatusCode)
	return env.ResponseData, nil
}
