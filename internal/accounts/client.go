// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package accounts

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

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/telemetry"
)

// ExpiresOnLayout is the timestamp format the hosted-auth endpoint expects.
const ExpiresOnLayout = "2006-01-02T15:04:05.000Z"

const maxVendorResponse = 1 << 20

// ErrVendorNotFound is returned when the vendor does not know the account.
var ErrVendorNotFound = errors.New("accounts: vendor account not found")

// ErrVendorNotConfigured is returned when the vendor settings are incomplete.
var ErrVendorNotConfigured = apperr.ServiceUnavailable("Account linking is not configured")

// # Client

// Settings configures a [Client].
type Settings struct {
	APIBase string // e.g. https://api8.unipile.com:13851/api/v1
	APIHost string // same origin, without /api/v1
	APIKey  string
	Timeout time.Duration
}

// Client talks to the Unipile REST API.
type Client struct {
	settings   Settings
	httpClient *http.Client
}

// NewClient builds a client whose outbound calls are traced.
func NewClient(settings Settings) *Client {
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}

	return &Client{
		settings: settings,
		httpClient: &http.Client{
			Timeout:   settings.Timeout,
			Transport: telemetry.Transport(http.DefaultTransport),
		},
	}
}

// Configured reports whether every required setting is present.
func (client *Client) Configured() bool {
	return client.settings.APIBase != "" && client.settings.APIHost != "" && client.settings.APIKey != ""
}

// APIHost is the value sent as api_url in hosted-auth requests.
func (client *Client) APIHost() string {
	return client.settings.APIHost
}

// HostedLinkRequest is the body of POST /hosted/accounts/link.
type HostedLinkRequest struct {
	Type               string   `json:"type"`
	Providers          []string `json:"providers"`
	APIURL             string   `json:"api_url"`
	ExpiresOn          string   `json:"expiresOn"`
	SuccessRedirectURL string   `json:"success_redirect_url"`
	FailureRedirectURL string   `json:"failure_redirect_url"`
	NotifyURL          string   `json:"notify_url"`
	Name               string   `json:"name"`
}

// VendorAccount is the subset of GET /accounts/{id} the service uses.
type VendorAccount struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Sources []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"sources"`

	Raw json.RawMessage `json:"-"`
}

// EffectiveStatus prefers the top-level status, then the first source's.
func (account *VendorAccount) EffectiveStatus() string {
	if account.Status != "" {
		return account.Status
	}
	if len(account.Sources) > 0 && account.Sources[0].Status != "" {
		return account.Sources[0].Status
	}
	return ""
}

/*
CreateHostedLink requests a wizard URL.

Returns:
  - string: The URL to redirect the browser to
  - error: TransportFailure when unreachable, rejected, or malformed
*/
func (client *Client) CreateHostedLink(ctx context.Context, payload HostedLinkRequest) (string, error) {
	var response struct {
		URL string `json:"url"`
	}

	raw, err := client.do(ctx, http.MethodPost, "/hosted/accounts/link", payload)
	if err != nil {
		return "", err
	}

	if err := json.Unmarshal(raw, &response); err != nil {
		return "", apperr.TransportFailure("Account provider returned an invalid response",
			fmt.Errorf("unipile_hosted_link_decode_failed: %w", err))
	}
	if response.URL == "" {
		return "", apperr.TransportFailure("Account provider returned an invalid response",
			errors.New("unipile_hosted_link_missing_url"))
	}
	return response.URL, nil
}

// GetAccount fetches one account. Unknown ids yield [ErrVendorNotFound].
func (client *Client) GetAccount(ctx context.Context, accountID string) (*VendorAccount, error) {
	raw, err := client.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID), nil)
	if err != nil {
		return nil, err
	}

	account := &VendorAccount{}
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, apperr.TransportFailure("Account provider returned an invalid response",
			fmt.Errorf("unipile_account_decode_failed: %w", err))
	}
	account.Raw = raw
	return account, nil
}

// DeleteAccount removes an account at the vendor. Unknown ids yield [ErrVendorNotFound].
func (client *Client) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := client.do(ctx, http.MethodDelete, "/accounts/"+url.PathEscape(accountID), nil)
	return err
}

func (client *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if !client.Configured() {
		return nil, ErrVendorNotConfigured
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("unipile_encode_failed: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.settings.APIBase+path, body)
	if err != nil {
		return nil, fmt.Errorf("unipile_request_build_failed: %w", err)
	}
	request.Header.Set("X-API-KEY", client.settings.APIKey)
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, apperr.TransportFailure("Account provider is unreachable",
			fmt.Errorf("unipile_%s_failed: %w", strings.ToLower(method), err))
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxVendorResponse))
	if err != nil {
		return nil, apperr.TransportFailure("Account provider is unreachable",
			fmt.Errorf("unipile_read_failed: %w", err))
	}

	switch {
	case response.StatusCode == http.StatusNotFound && method != http.MethodPost:
		return nil, ErrVendorNotFound
	case response.StatusCode >= 400:
		return nil, apperr.TransportFailure(
			fmt.Sprintf("Account provider rejected the request (status %d)", response.StatusCode),
			fmt.Errorf("unipile %s %s: status %d: %s", method, path, response.StatusCode, truncate(raw, 512)))
	}
	return raw, nil
}

func truncate(raw []byte, limit int) string {
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}

// FormatExpiresOn renders t as the vendor expects, in UTC with milliseconds.
func FormatExpiresOn(t time.Time) string {
	return t.UTC().Format(ExpiresOnLayout)
}
