package sdk

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrSiteNotFound is returned when a requested site has no options.
	ErrSiteNotFound = errors.New("site not found")
	// ErrKeyNotFound is returned when a requested option does not exist within a site.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnavailable is returned when the store cannot be reached at all.
	ErrUnavailable = errors.New("option store unavailable")
	// ErrInvalidName is returned for a site or key the store refuses to hold.
	ErrInvalidName = errors.New("invalid site or key name")
)

// DefaultSite is the site used when none is configured.
const DefaultSite = "default"

// ValidKey reports whether key can be stored: non-empty, without whitespace
// or control characters, so it travels as one word of the line protocol.
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ValidSite is ValidKey plus the rules for a file name inside the data directory.
func ValidSite(siteID string) bool {
	if !ValidKey(siteID) || siteID == "." || siteID == ".." {
		return false
	}
	return !strings.ContainsAny(siteID, `/\`)
}

// --- Functional Interfaces (Interface Segregation) ---

// OptionReader defines the basic read operation for the store.
type OptionReader interface {
	Get(siteID, key string) (string, error)
}

// OptionWriter defines the basic write and delete operations for the store.
type OptionWriter interface {
	Set(siteID, key, val string) error
	Delete(siteID, key string) error
}

// SiteEnumeration allows discovering sites.
type SiteEnumeration interface {
	GetSites() ([]string, error)
}

// BatchExporter allows retrieving every option of a site at once.
type BatchExporter interface {
	GetSiteOptions(siteID string) (map[string]string, error)
}

// --- Composite Interfaces ---

// OptionStore is the key-value configuration store holding redaction toggles.
// Both the embedded engine and the remote client implement it.
type OptionStore interface {
	OptionReader
	OptionWriter
	SiteEnumeration
	BatchExporter

	// Site returns a SiteScope that pins every operation to one site.
	Site(siteID string) SiteScope
}

// SiteScope provides get/set-by-name access to a single site's options.
type SiteScope interface {
	Get(key string) (string, error)
	Set(key, val string) error
	Delete(key string) error
}
