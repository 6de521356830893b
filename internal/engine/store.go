// Package engine implements the embedded option store used when no remote store is configured.
package engine

import (
	"fmt"

	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

// The engine reports the same sentinels as the remote client so callers
// can classify misses with errors.Is regardless of the backend.
var (
	ErrSiteNotFound = sdk.ErrSiteNotFound
	ErrKeyNotFound  = sdk.ErrKeyNotFound
	ErrInvalidName  = sdk.ErrInvalidName
)

func checkSite(siteID string) error {
	if !sdk.ValidSite(siteID) {
		return fmt.Errorf("%w: site %q", ErrInvalidName, siteID)
	}
	return nil
}

func checkNames(siteID, key string) error {
	if err := checkSite(siteID); err != nil {
		return err
	}
	if !sdk.ValidKey(key) {
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	}
	return nil
}
