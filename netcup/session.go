package netcup

import (
	"context"
	"encoding/json"
	"fmt"
)

// Session is an authenticated handle on the webservice. Sessions are never
// shared between logical operations; use WithSession to scope one to a
// function.
type Session struct {
	client *Client
	id     string
}

type loginParam struct {
	CustomerNumber string `json:"customernumber"`
	APIKey         string `json:"apikey"`
	APIPassword    string `json:"apipassword"`
}

type loginData struct {
	APISessionID string `json:"apisessionid"`
}

type logoutParam struct {
	CustomerNumber string `json:"customernumber"`
	APIKey         string `json:"apikey"`
	APISessionID   string `json:"apisessionid"`
}

// Login opens a new session. A login failure always propagates; nothing can
// proceed without a session.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	data, err := c.call(ctx, "login", loginParam{
		CustomerNumber: c.creds.CustomerNumber,
		APIKey:         c.creds.APIKey,
		APIPassword:    c.creds.APIPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("netcup: login: %w", err)
	}

	var out loginData
	if err := unmarshalData(data, &out); err != nil {
		return nil, fmt.Errorf("netcup: login: %w", err)
	}
	if out.APISessionID == "" {
		return nil, fmt.Errorf("netcup: login returned an empty session id")
	}
	return &Session{client: c, id: out.APISessionID}, nil
}

// Logout closes the session. Best-effort; the server expires sessions on
// its own anyway.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.client.call(ctx, "logout", logoutParam{
		CustomerNumber: s.client.creds.CustomerNumber,
		APIKey:         s.client.creds.APIKey,
		APISessionID:   s.id,
	})
	return err
}

// WithSession runs fn inside a fresh session. The session is logged out
// when fn returns; logout failures are discarded (the session may already
// have expired server-side) and only logged at debug.
func (c *Client) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := c.Login(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Logout(ctx); err != nil {
			c.logger.Debug("logout failed", "error", err)
		}
	}()
	return fn(ctx, s)
}

// unmarshalData decodes responsedata, tolerating the literal null the API
// emits for actions without payload.
func unmarshalData(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
