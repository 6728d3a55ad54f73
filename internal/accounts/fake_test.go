// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package accounts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/unilink/internal/accounts"
	"github.com/taibuivan/unilink/internal/platform/apperr"
)

// # In-memory Repository

type memRepository struct {
	mu       sync.Mutex
	accounts map[string]*accounts.ConnectedAccount
	writes   int
}

var _ accounts.Repository = (*memRepository)(nil)

func newMemRepository() *memRepository {
	return &memRepository{accounts: map[string]*accounts.ConnectedAccount{}}
}

func (repository *memRepository) get(accountID string) *accounts.ConnectedAccount {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if account, ok := repository.accounts[accountID]; ok {
		clone := *account
		return &clone
	}
	return nil
}

func (repository *memRepository) FindByAccountID(_ context.Context, accountID string) (*accounts.ConnectedAccount, error) {
	if account := repository.get(accountID); account != nil {
		return account, nil
	}
	return nil, apperr.NotFound("Account")
}

func (repository *memRepository) ApplyStatus(_ context.Context, account *accounts.ConnectedAccount) (bool, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	existing, ok := repository.accounts[account.AccountID]
	if ok {
		if existing.Status == account.Status {
			return false, nil
		}
		existing.Status = account.Status
		existing.UpdatedAt = account.ConnectedAt
		repository.writes++
		return true, nil
	}

	clone := *account
	clone.UpdatedAt = account.ConnectedAt
	repository.accounts[account.AccountID] = &clone
	repository.writes++
	return true, nil
}

func (repository *memRepository) Sync(_ context.Context, accountID, status, provider string, data json.RawMessage, at time.Time) (*accounts.ConnectedAccount, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	account, ok := repository.accounts[accountID]
	if !ok {
		return nil, apperr.NotFound("Account")
	}
	account.Status = status
	if provider != "" {
		account.Provider = provider
	}
	if len(data) > 0 {
		account.AccountData = data
	}
	account.LastSync = &at
	account.UpdatedAt = at
	repository.writes++

	clone := *account
	return &clone, nil
}

func (repository *memRepository) SetStatus(_ context.Context, accountID, status string, at time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	account, ok := repository.accounts[accountID]
	if !ok {
		return apperr.NotFound("Account")
	}
	account.Status = status
	account.UpdatedAt = at
	repository.writes++
	return nil
}

func (repository *memRepository) visible(userID string) []*accounts.ConnectedAccount {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	var out []*accounts.ConnectedAccount
	for _, account := range repository.accounts {
		if userID == "" || account.UserID == userID {
			clone := *account
			out = append(out, &clone)
		}
	}
	slices.SortFunc(out, func(a, b *accounts.ConnectedAccount) int {
		return b.ConnectedAt.Compare(a.ConnectedAt)
	})
	return out
}

func (repository *memRepository) List(_ context.Context, userID string) ([]*accounts.ConnectedAccount, error) {
	return repository.visible(userID), nil
}

func (repository *memRepository) Recent(_ context.Context, userID string, limit int) ([]*accounts.ConnectedAccount, error) {
	out := repository.visible(userID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (repository *memRepository) Stats(_ context.Context, userID string) (*accounts.Stats, error) {
	stats := &accounts.Stats{}
	for _, account := range repository.visible(userID) {
		stats.TotalAccounts++
		if account.IsActive() {
			stats.ActiveAccounts++
		}
		if account.Status == accounts.StatusPending || account.Status == accounts.StatusConnecting {
			stats.PendingAccounts++
		}
	}
	return stats, nil
}

// # Fake Vendor

const testAPIKey = "vendor-key"

// fakeVendor serves the Unipile endpoints the client calls.
type fakeVendor struct {
	mu       sync.Mutex
	accounts map[string]map[string]any
	links    []accounts.HostedLinkRequest
	apiKeys  []string
	deleted  []string
	status   int

	server *httptest.Server
}

func newFakeVendor(t *testing.T) *fakeVendor {
	t.Helper()

	vendor := &fakeVendor{accounts: map[string]map[string]any{}}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			vendor.mu.Lock()
			vendor.apiKeys = append(vendor.apiKeys, request.Header.Get("X-API-KEY"))
			status := vendor.status
			vendor.mu.Unlock()

			if status != 0 {
				http.Error(writer, `{"detail":"boom"}`, status)
				return
			}
			next.ServeHTTP(writer, request)
		})
	})

	router.Post("/api/v1/hosted/accounts/link", func(writer http.ResponseWriter, request *http.Request) {
		var payload accounts.HostedLinkRequest
		if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
			http.Error(writer, "bad json", http.StatusBadRequest)
			return
		}
		vendor.mu.Lock()
		vendor.links = append(vendor.links, payload)
		vendor.mu.Unlock()

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusCreated)
		_, _ = writer.Write([]byte(`{"object":"HostedAuthUrl","url":"https://account.unipile.com/wizard/abc"}`))
	})

	router.Get("/api/v1/accounts/{id}", func(writer http.ResponseWriter, request *http.Request) {
		vendor.mu.Lock()
		account, ok := vendor.accounts[chi.URLParam(request, "id")]
		vendor.mu.Unlock()

		if !ok {
			http.Error(writer, `{"type":"errors/resource_not_found"}`, http.StatusNotFound)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(account)
	})

	router.Delete("/api/v1/accounts/{id}", func(writer http.ResponseWriter, request *http.Request) {
		id := chi.URLParam(request, "id")

		vendor.mu.Lock()
		defer vendor.mu.Unlock()

		if _, ok := vendor.accounts[id]; !ok {
			http.Error(writer, `{"type":"errors/resource_not_found"}`, http.StatusNotFound)
			return
		}
		delete(vendor.accounts, id)
		vendor.deleted = append(vendor.deleted, id)
		_, _ = writer.Write([]byte(`{"object":"AccountDeleted"}`))
	})

	vendor.server = httptest.NewServer(router)
	t.Cleanup(vendor.server.Close)
	return vendor
}

func (vendor *fakeVendor) client() *accounts.Client {
	return accounts.NewClient(accounts.Settings{
		APIBase: vendor.server.URL + "/api/v1",
		APIHost: vendor.server.URL,
		APIKey:  testAPIKey,
		Timeout: 5 * time.Second,
	})
}

func (vendor *fakeVendor) put(id string, account map[string]any) {
	vendor.mu.Lock()
	defer vendor.mu.Unlock()
	vendor.accounts[id] = account
}

func (vendor *fakeVendor) failWith(status int) {
	vendor.mu.Lock()
	defer vendor.mu.Unlock()
	vendor.status = status
}

func (vendor *fakeVendor) lastLink() accounts.HostedLinkRequest {
	vendor.mu.Lock()
	defer vendor.mu.Unlock()
	return vendor.links[len(vendor.links)-1]
}
