// Package policy reads and writes redaction toggles in the option store.
//
// Toggles are stored as the literals "yes" and "no". Anything else, including
// a missing option, resolves to the caller's default. Reads are never cached:
// an administrator's save must be honoured by the very next erasure event.
package policy

import (
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-redact/pkg/catalog"
	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

// ErrStoreUnavailable marks a failure of the option store as a whole,
// as opposed to a single missing or unreadable toggle.
var ErrStoreUnavailable = errors.New("policy store unavailable")

const (
	yes = "yes"
	no  = "no"
)

// Options is the part of the option store the adapter needs: get/set by name.
type Options interface {
	Get(key string) (string, error)
	Set(key, val string) error
}

// Store is the policy store adapter.
type Store struct {
	options Options
}

// NewStore wraps a site-scoped option store.
func NewStore(options Options) *Store {
	return &Store{options: options}
}

// Toggle reads a toggle, falling back to def when it is absent or unrecognized.
// An error is returned only when the store itself failed.
func (s *Store) Toggle(key catalog.ToggleKey, def bool) (bool, error) {
	raw, err := s.options.Get(string(key))
	if err != nil {
		if errors.Is(err, sdk.ErrKeyNotFound) || errors.Is(err, sdk.ErrSiteNotFound) || errors.Is(err, sdk.ErrInvalidName) {
			return def, nil
		}
		return def, fmt.Errorf("%w: reading %s: %v", ErrStoreUnavailable, key, err)
	}
	switch raw {
	case yes:
		return true, nil
	case no:
		return false, nil
	}
	return def, nil
}

// SetToggle stores a toggle. Only the settings surface writes toggles.
func (s *Store) SetToggle(key catalog.ToggleKey, enabled bool) error {
	val := no
	if enabled {
		val = yes
	}
	if err := s.options.Set(string(key), val); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// EraseField reports whether a field toggle allows erasure. Unset means erase.
func (s *Store) EraseField(key catalog.ToggleKey) (bool, error) {
	return s.Toggle(key, true)
}

// SweepEnabled reports whether the saved-address sweep is switched on. Unset means off.
func (s *Store) SweepEnabled() (bool, error) {
	return s.Toggle(catalog.SweepToggleKey, false)
}
