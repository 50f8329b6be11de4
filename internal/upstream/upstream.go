// Package upstream talks to the regional live-server control planes and to
// the gateway that fans room events out to viewers. Calls fail fast: a
// non-2xx response is returned as a *StatusError and nothing is retried.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUpstream is wrapped by every error caused by a live server or the gateway.
var ErrUpstream = errors.New("upstream failure")

// StatusError reports a non-success HTTP status from an upstream call.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrUpstream
}

// maxBody bounds how much of an upstream response is read.
const maxBody = 1 << 20

// NewHTTPClient returns the client shared by ControlPlane and Gateway.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// do issues the request and decodes a JSON response into out when out is
// non-nil. Transport errors and bad statuses both wrap ErrUpstream.
func do(client *http.Client, req *http.Request, op string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return &StatusError{Op: op, Status: resp.StatusCode}
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: decode response: %w", op, ErrUpstream, err)
	}
	return nil
}

// ControlPlane reserves and releases stream keys on live servers. Token is
// the shared secret live servers expect in the authorization query parameter.
type ControlPlane struct {
	Client *http.Client
	Token  string
}

func (c *ControlPlane) controlURL(control, action, room string) string {
	q := url.Values{}
	q.Set("room", room)
	q.Set("authorization", c.Token)
	return strings.TrimRight(control, "/") + "/control/" + action + "?" + q.Encode()
}

// ReserveStreamKey asks the live server at control for a stream key for room.
func (c *ControlPlane) ReserveStreamKey(ctx context.Context, control, room string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.controlURL(control, "get", room), nil)
	if err != nil {
		return "", err
	}
	var body struct {
		Data string `json:"data"`
	}
	if err := do(c.Client, req, "reserve stream key", &body); err != nil {
		return "", err
	}
	if body.Data == "" {
		return "", fmt.Errorf("reserve stream key: %w: empty key", ErrUpstream)
	}
	return body.Data, nil
}

// ReleaseStreamKey tells the live server at control to drop room.
func (c *ControlPlane) ReleaseStreamKey(ctx context.Context, control, room string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.controlURL(control, "delete", room), nil)
	if err != nil {
		return err
	}
	return do(c.Client, req, "release stream key", nil)
}

// Gateway registers rooms with the viewer gateway and relays events to them.
type Gateway struct {
	Client  *http.Client
	BaseURL string
}

func (g *Gateway) endpoint(action, room string) string {
	return strings.TrimRight(g.BaseURL, "/") + "/" + action + "/" + url.PathEscape(room)
}

// AddRoom announces room, served by the live server at control.
func (g *Gateway) AddRoom(ctx context.Context, room, control string) error {
	u := g.endpoint("add", room) + "?" + url.Values{"live_server": {control}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return do(g.Client, req, "gateway add", nil)
}

// RemoveRoom withdraws room from the gateway.
func (g *Gateway) RemoveRoom(ctx context.Context, room string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("remove", room), nil)
	if err != nil {
		return err
	}
	return do(g.Client, req, "gateway remove", nil)
}

// Stats fetches the gateway's statistics object for room.
func (g *Gateway) Stats(ctx context.Context, room string) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("stats", room), nil)
	if err != nil {
		return nil, err
	}
	var stats map[string]json.RawMessage
	if err := do(g.Client, req, "gateway stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Emit relays an arbitrary JSON event to the room's channel.
func (g *Gateway) Emit(ctx context.Context, room string, event json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint("emit", room), bytes.NewReader(event))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(g.Client, req, "gateway emit", nil)
}
