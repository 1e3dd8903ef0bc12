// Package client is a thin HTTP and websocket client for the ParkNet API, used by parknetctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parknet-api-server/internal/models"
	"parknet-api-server/internal/socket"

	"github.com/gorilla/websocket"
)

// APIError is a non-2xx response decoded from the server's {error, code} body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
}

func (c *Client) Facility(ctx context.Context, facilityID string) (models.FacilityView, error) {
	var v models.FacilityView
	err := c.do(ctx, http.MethodGet, "/api/v1/facilities/"+url.PathEscape(facilityID), nil, &v)
	return v, err
}

func (c *Client) Snapshot(ctx context.Context, facilityID string) (models.Snapshot, error) {
	var s models.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/facilities/"+url.PathEscape(facilityID)+"/snapshot", nil, &s)
	return s, err
}

// SetOccupancy reports a sensor reading. changed is false when the slot was already in that state.
func (c *Client) SetOccupancy(ctx context.Context, facilityID string, slot int, occupied bool) (ev models.ChangeEvent, changed bool, err error) {
	var out struct {
		Event   models.ChangeEvent `json:"event"`
		Changed bool               `json:"changed"`
	}
	path := fmt.Sprintf("/api/v1/admin/facilities/%s/slots/%d/occupancy", url.PathEscape(facilityID), slot)
	err = c.do(ctx, http.MethodPut, path, map[string]bool{"occupied": occupied}, &out)
	return out.Event, out.Changed, err
}

// RequestHold reserves a slot. A zero ttl leaves the choice to the server.
func (c *Client) RequestHold(ctx context.Context, facilityID string, slot int, ttl time.Duration) (models.Hold, error) {
	body := map[string]any{"facilityID": facilityID, "slotNumber": slot}
	if ttl > 0 {
		body["ttlSeconds"] = int(ttl / time.Second)
	}
	var h models.Hold
	err := c.do(ctx, http.MethodPost, "/api/v1/holds", body, &h)
	return h, err
}

func (c *Client) ExtendHold(ctx context.Context, holdID string, extra time.Duration) (models.Hold, error) {
	var h models.Hold
	err := c.do(ctx, http.MethodPost, "/api/v1/holds/"+url.PathEscape(holdID)+"/extend",
		map[string]int{"extraSeconds": int(extra / time.Second)}, &h)
	return h, err
}

func (c *Client) ReleaseHold(ctx context.Context, holdID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/holds/"+url.PathEscape(holdID), nil, nil)
}

func (c *Client) ConfirmArrival(ctx context.Context, holdID string) (models.ChangeEvent, error) {
	var ev models.ChangeEvent
	err := c.do(ctx, http.MethodPost, "/api/v1/holds/"+url.PathEscape(holdID)+"/arrive", nil, &ev)
	return ev, err
}

// Watch streams a facility's websocket messages to fn until ctx is done, the
// server closes the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, facilityID string, fn func(socket.Message) error) error {
	wsURL, err := c.websocketURL(facilityID)
	if err != nil {
		return err
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return decodeError(resp)
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg socket.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

func (c *Client) websocketURL(facilityID string) (string, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/facilities/" + url.PathEscape(facilityID) + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Code, apiErr.Message = body.Code, body.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Code == "" {
		apiErr.Code = strconv.Itoa(resp.StatusCode)
	}
	return apiErr
}
