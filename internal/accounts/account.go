// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package accounts links external messaging accounts through Unipile's hosted
authentication wizard.

The flow has three legs:

 1. Connect asks the vendor for a short-lived wizard URL, naming the local
    user so the callback can be attributed.
 2. The vendor calls the webhook with the new account id and a status. The
    local record is created or its status changed; replays are no-ops.
 3. Status and Disconnect talk to the vendor for one account, then mirror
    the result locally.

Non-admin callers only ever see their own accounts.
*/
package accounts

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// # Statuses

// Vendor account statuses this service reasons about. Others are stored as-is.
const (
	StatusCreationSuccess = "CREATION_SUCCESS"
	StatusReconnected     = "RECONNECTED"
	StatusOK              = "OK"
	StatusRunning         = "RUNNING"
	StatusPending         = "PENDING"
	StatusConnecting      = "CONNECTING"
	StatusCredentials     = "CREDENTIALS"
	StatusDisconnected    = "DISCONNECTED"
)

var (
	activeStatuses  = []string{StatusCreationSuccess, StatusReconnected, StatusOK, StatusRunning}
	pendingStatuses = []string{StatusPending, StatusConnecting}
)

// # Providers

// ProviderAny lets the user pick the network inside the wizard.
const ProviderAny = "*"

// ProviderUnknown is recorded when a webhook does not say which network it is for.
const ProviderUnknown = "UNKNOWN"

// Providers accepted by Connect.
var Providers = []string{
	"LINKEDIN", "WHATSAPP", "INSTAGRAM", "MESSENGER", "TELEGRAM",
	"TWITTER", "GOOGLE", "OUTLOOK", "MAIL", ProviderAny,
}

// NormalizeProvider upper-cases provider and reports whether it is supported.
func NormalizeProvider(provider string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(provider))
	return normalized, slices.Contains(Providers, normalized)
}

// # Entities

// ConnectedAccount is the local mirror of one vendor account.
type ConnectedAccount struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	UserID      string          `json:"user_id"`
	Provider    string          `json:"provider"`
	Status      string          `json:"status"`
	AccountData json.RawMessage `json:"account_data,omitempty"`
	ConnectedAt time.Time       `json:"connected_at"`
	LastSync    *time.Time      `json:"last_sync,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsActive reports whether the vendor considers the account usable.
func (account *ConnectedAccount) IsActive() bool {
	return slices.Contains(activeStatuses, account.Status)
}

// Notification is a decoded vendor webhook call.
type Notification struct {
	Status    string
	AccountID string
	Name      string
	Provider  string
	Raw       json.RawMessage
}

// ConnectLink is a hosted wizard URL handed to the browser.
type ConnectLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Stats summarizes connected accounts for the dashboard.
type Stats struct {
	TotalAccounts   int  `json:"total_accounts"`
	ActiveAccounts  int  `json:"active_accounts"`
	PendingAccounts int  `json:"pending_accounts"`
	TotalUsers      *int `json:"total_users,omitempty"`
}

// Dashboard is the landing view of a signed-in user.
type Dashboard struct {
	Stats          Stats               `json:"stats"`
	RecentAccounts []*ConnectedAccount `json:"recent_accounts"`
}

// DashboardRecentLimit bounds Dashboard.RecentAccounts.
const DashboardRecentLimit = 5
