// Package daily provisions video rooms through the Daily REST API.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
)

// DefaultBaseURL is the public Daily API.
const DefaultBaseURL = "https://api.daily.co/v1"

// RoomTTL is how long a provisioned room stays joinable.
const RoomTTL = 2 * time.Hour

// Client creates private two-person rooms.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	clock   clock.Clock
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the traced default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithClock(cl clock.Clock) Option { return func(c *Client) { c.clock = cl } }

// New returns a client for baseURL (DefaultBaseURL when empty).
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("daily: api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		clock:   clock.Real(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type roomProperties struct {
	Exp             int64 `json:"exp"`
	MaxParticipants int   `json:"max_participants"`
	EnableChat      bool  `json:"enable_chat"`
	EnableScreen    bool  `json:"enable_screenshare"`
}

type createRoom struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties roomProperties `json:"properties"`
}

type roomResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Provision implements booking.RoomProvisioner. Every failure is a
// provisioning error carrying the appointment id.
func (c *Client) Provision(ctx context.Context, appointmentID string) (booking.Room, error) {
	now := c.clock.Now()
	ectx := map[string]any{"appointment_id": appointmentID}
	body, err := json.Marshal(createRoom{
		Name:    fmt.Sprintf("%s-%d", strings.ToLower(booking.RoomName(appointmentID)), now.Unix()),
		Privacy: "private",
		Properties: roomProperties{
			Exp:             now.Add(RoomTTL).Unix(),
			MaxParticipants: 2,
		},
	})
	if err != nil {
		return booking.Room{}, errmodel.Provisioning("room_request", "encode room request", ectx, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return booking.Room{}, errmodel.Provisioning("room_request", "build room request", ectx, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return booking.Room{}, errmodel.Provisioning("room_unreachable", "video provider unreachable", ectx, err)
	}
	defer func() { _ = res.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if res.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
			Info  string `json:"info"`
		}
		_ = json.Unmarshal(raw, &e)
		ectx["status"] = res.StatusCode
		return booking.Room{}, errmodel.Provisioning("room_rejected", fmt.Sprintf("video provider returned %d %s", res.StatusCode, e.Info), ectx, nil)
	}
	var room roomResponse
	if err := json.Unmarshal(raw, &room); err != nil || room.URL == "" {
		return booking.Room{}, errmodel.Provisioning("room_malformed", "video provider returned no room url", ectx, err)
	}
	return booking.Room{Name: room.Name, URL: room.URL}, nil
}

var _ booking.RoomProvisioner = (*Client)(nil)
