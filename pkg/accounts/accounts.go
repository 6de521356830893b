// Package accounts finds customer accounts that still hold saved billing or shipping data.
package accounts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrAccountNotFound is returned when an account id has no user record.
var ErrAccountNotFound = errors.New("account not found")

// Lookup is the account-lookup collaborator used by the sweep and the settings surface.
type Lookup interface {
	// AccountsWithSavedAddress returns distinct account ids having at least one
	// non-empty billing_ or shipping_ field, in ascending id order.
	AccountsWithSavedAddress(ctx context.Context) ([]int64, error)
	// ContactAddress resolves the email address of an account.
	ContactAddress(ctx context.Context, accountID int64) (string, error)
}

// CountWithSavedAddress is the diagnostic shown next to the sweep toggle.
func CountWithSavedAddress(ctx context.Context, l Lookup) (int, error) {
	ids, err := l.AccountsWithSavedAddress(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func isAddressField(key string) bool {
	return strings.HasPrefix(key, "billing_") || strings.HasPrefix(key, "shipping_")
}

// Memory is an in-process account directory, used when no database is configured.
type Memory struct {
	mu     sync.RWMutex
	emails map[int64]string
	meta   map[int64]map[string]string
}

// NewMemory returns an empty directory.
func NewMemory() *Memory {
	return &Memory{
		emails: make(map[int64]string),
		meta:   make(map[int64]map[string]string),
	}
}

// PutAccount registers an account and its email.
func (m *Memory) PutAccount(id int64, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[id] = email
}

// SetMeta stores one user meta value.
func (m *Memory) SetMeta(id int64, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[id] == nil {
		m.meta[id] = make(map[string]string)
	}
	m.meta[id][key] = value
}

// ClearAddresses blanks every billing_ and shipping_ value of an account.
func (m *Memory) ClearAddresses(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.meta[id] {
		if isAddressField(k) {
			m.meta[id][k] = ""
		}
	}
}

func (m *Memory) AccountsWithSavedAddress(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id, fields := range m.meta {
		for k, v := range fields {
			if isAddressField(k) && v != "" {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) ContactAddress(ctx context.Context, accountID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email, ok := m.emails[accountID]
	if !ok {
		return "", ErrAccountNotFound
	}
	return email, nil
}
