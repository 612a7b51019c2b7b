package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Credentials identifies one clinic against the broker.
type Credentials struct {
	ClinicID string
	APIKey   string
}

// Client is a typed client for the broker wire contract. All methods return
// an error for any non-2xx response; callers decide whether to swallow it.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type OnboardResult struct {
	ClinicID string `json:"clinicId"`
	APIKey   string `json:"apiKey"`
}

type SlotPayload struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type RemoteSlot struct {
	ID       string `json:"id"`
	ClinicID string `json:"clinicId"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Status   string `json:"status"`
}

type RemoteMessage struct {
	ID        string          `json:"id"`
	ClinicID  string          `json:"clinicId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// appointmentPayload mirrors the broker's APPOINTMENT_REQUEST payload schema.
type appointmentPayload struct {
	Name   string  `json:"name"`
	Phone  string  `json:"phone"`
	Reason string  `json:"reason"`
	SlotID *string `json:"slotId"`
	Date   string  `json:"date"`
	Time   string  `json:"time"`
}

func (c *Client) Onboard(ctx context.Context, installSecret, name, city string) (OnboardResult, error) {
	var out OnboardResult
	headers := map[string]string{"x-app-secret": installSecret}
	body := map[string]string{"name": name, "city": city}
	if err := c.do(ctx, http.MethodPost, "/onboard", headers, body, &out); err != nil {
		return OnboardResult{}, err
	}
	return out, nil
}

func (c *Client) PublishSlots(ctx context.Context, creds Credentials, slots []SlotPayload, dates []string) error {
	body := map[string]any{"slots": slots}
	if len(dates) > 0 {
		body["dates"] = dates
	}
	return c.do(ctx, http.MethodPost, "/slots", clinicHeaders(creds), body, nil)
}

func (c *Client) ListAvailable(ctx context.Context, clinicID, date string) ([]RemoteSlot, error) {
	path := "/slots/" + url.PathEscape(clinicID)
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var out []RemoteSlot
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Drain(ctx context.Context, creds Credentials) ([]RemoteMessage, error) {
	var out []RemoteMessage
	if err := c.do(ctx, http.MethodGet, "/sync", clinicHeaders(creds), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Ack(ctx context.Context, creds Credentials, ids []string) error {
	body := map[string][]string{"ids": ids}
	return c.do(ctx, http.MethodPost, "/ack", clinicHeaders(creds), body, nil)
}

func clinicHeaders(creds Credentials) map[string]string {
	return map[string]string{
		"x-clinic-id": creds.ClinicID,
		"x-api-key":   creds.APIKey,
	}
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
