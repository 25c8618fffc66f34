// Package broker implements the real-mode order submission channel
// against the Angel One SmartAPI. Only the endpoints the simulator needs
// are implemented: session login, order place/cancel, LTP, and RMS
// limits.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultRootURL = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.order.place":  "/rest/secure/angelbroking/order/v1/placeOrder",
	"api.order.cancel": "/rest/secure/angelbroking/order/v1/cancelOrder",
	"api.ltp.data":     "/rest/secure/angelbroking/order/v1/getLtpData",
	"api.rms.limit":    "/rest/secure/angelbroking/user/v1/getRMS",
}

// ClientConfig configures the SmartAPI client.
type ClientConfig struct {
	APIKey  string
	RootURL string        // default: https://apiconnect.angelone.in
	Timeout time.Duration // default: 7s
	Debug   bool
}

// Client is a minimal Angel One SmartAPI HTTP client.
type Client struct {
	apiKey      string
	rootURL     string
	debug       bool
	accessToken string
	feedToken   string
	httpClient  *http.Client
}

// NewClient creates a SmartAPI client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRootURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		debug:      cfg.Debug,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GenerateSession logs in with client code, password, and a fresh TOTP,
// and stores the returned JWT for subsequent calls.
func (c *Client) GenerateSession(ctx context.Context, clientCode, password, totp string) error {
	res, err := c.post(ctx, "api.login", map[string]any{
		"clientcode": clientCode,
		"password":   password,
		"totp":       totp,
	})
	if err != nil {
		return fmt.Errorf("smartapi login: %w", err)
	}
	data, _ := res["data"].(map[string]any)
	if data == nil {
		return fmt.Errorf("smartapi login: unexpected response: %v", res)
	}
	c.accessToken, _ = data["jwtToken"].(string)
	c.feedToken, _ = data["feedToken"].(string)
	if c.accessToken == "" {
		return fmt.Errorf("smartapi login: no jwt token in response")
	}
	log.Printf("[broker] session established for %s", clientCode)
	return nil
}

// PlaceOrder places an order and returns the broker order id.
func (c *Client) PlaceOrder(ctx context.Context, params map[string]any) (string, error) {
	res, err := c.post(ctx, "api.order.place", params)
	if err != nil {
		return "", err
	}
	if st, _ := res["status"].(bool); !st {
		msg, _ := res["message"].(string)
		return "", fmt.Errorf("place order failed: %s", msg)
	}
	if data, ok := res["data"].(map[string]any); ok {
		if oid, _ := data["orderid"].(string); oid != "" {
			return oid, nil
		}
	}
	return "", fmt.Errorf("place order: invalid response format: %v", res)
}

// CancelOrder cancels a previously placed order.
func (c *Client) CancelOrder(ctx context.Context, orderID, variety string) error {
	res, err := c.post(ctx, "api.order.cancel", map[string]any{
		"variety": variety,
		"orderid": orderID,
	})
	if err != nil {
		return err
	}
	if st, _ := res["status"].(bool); !st {
		msg, _ := res["message"].(string)
		return fmt.Errorf("cancel order failed: %s", msg)
	}
	return nil
}

// LTP returns the last traded price in paise for an instrument.
func (c *Client) LTP(ctx context.Context, exchange, tradingSymbol, token string) (int64, error) {
	res, err := c.post(ctx, "api.ltp.data", map[string]any{
		"exchange":      exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   token,
	})
	if err != nil {
		return 0, err
	}
	data, _ := res["data"].(map[string]any)
	if data == nil {
		return 0, fmt.Errorf("ltp: unexpected response: %v", res)
	}
	ltp, _ := data["ltp"].(float64) // rupees
	return int64(ltp * 100), nil
}

// RMSLimit returns available and used cash in paise from the broker's
// risk management system. Real-mode funds are mirrored from here.
func (c *Client) RMSLimit(ctx context.Context) (available, used int64, err error) {
	res, err := c.get(ctx, "api.rms.limit")
	if err != nil {
		return 0, 0, err
	}
	data, _ := res["data"].(map[string]any)
	if data == nil {
		return 0, 0, fmt.Errorf("rms limit: unexpected response: %v", res)
	}
	return rupeesToPaise(data["availablecash"]), rupeesToPaise(data["utiliseddebits"]), nil
}

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	return h
}

func (c *Client) post(ctx context.Context, route string, params map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, route, params)
}

func (c *Client) get(ctx context.Context, route string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, route, nil)
}

func (c *Client) do(ctx context.Context, method, route string, params map[string]any) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}

	var body io.Reader
	if method != http.MethodGet {
		if params == nil {
			params = map[string]any{}
		}
		b, _ := json.Marshal(params)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+uri, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()

	if c.debug {
		log.Printf("[broker] %s %s params=%v", method, uri, params)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.debug {
		log.Printf("[broker] response code=%d body=%s", resp.StatusCode, string(raw))
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("couldn't parse JSON response: %w", err)
	}
	if et, ok := out["error_type"].(string); ok && et != "" {
		msg, _ := out["message"].(string)
		return out, fmt.Errorf("%s: %s", et, msg)
	}
	return out, nil
}

func rupeesToPaise(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t * 100)
	case string:
		var f float64
		fmt.Sscanf(t, "%f", &f)
		return int64(f * 100)
	default:
		return 0
	}
}
