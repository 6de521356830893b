package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

// MemStore is a thread-safe in-memory option store with write-behind persistence.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [siteID][option]value
	data      map[string]map[string]string
	persister *Persistence
	wg        sync.WaitGroup
}

var _ sdk.OptionStore = (*MemStore)(nil)

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and an optional persister.
func NewMemStore(initialData map[string]map[string]string, p *Persistence) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[string]string)
	}
	return &MemStore{
		data:      initialData,
		persister: p,
	}
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

func (m *MemStore) Get(siteID, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	site, ok := m.data[siteID]
	if !ok {
		return "", ErrSiteNotFound
	}

	val, ok := site[key]
	if !ok {
		return "", ErrKeyNotFound
	}

	return val, nil
}

// Set stores an option. Site ids double as file names, so ids that are not
// plain names are rejected with ErrInvalidName.
func (m *MemStore) Set(siteID, key, val string) error {
	if err := checkNames(siteID, key); err != nil {
		return err
	}
	m.mu.Lock()
	if m.data[siteID] == nil {
		m.data[siteID] = make(map[string]string)
	}
	m.data[siteID][key] = val
	snapshot := m.copySite(siteID)
	m.mu.Unlock()

	m.persist(siteID, snapshot)
	return nil
}

func (m *MemStore) Delete(siteID, key string) error {
	if err := checkNames(siteID, key); err != nil {
		return err
	}
	m.mu.Lock()
	site, ok := m.data[siteID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(site, key)
	snapshot := m.copySite(siteID)
	m.mu.Unlock()

	m.persist(siteID, snapshot)
	return nil
}

func (m *MemStore) persist(siteID string, snapshot map[string]string) {
	if m.persister == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.persister.SaveSite(siteID, snapshot); err != nil {
			slog.Error("failed to persist site options", "site", siteID, "error", err)
		}
	}()
}

// copySite creates a copy of a site's options.
// It MUST be called while holding m.mu.
func (m *MemStore) copySite(siteID string) map[string]string {
	original, ok := m.data[siteID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(original))
	for k, v := range original {
		out[k] = v
	}
	return out
}

func (m *MemStore) GetSites() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for id := range m.data {
		list = append(list, id)
	}
	sort.Strings(list)
	return list, nil
}

func (m *MemStore) GetSiteOptions(siteID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.data[siteID]; !ok {
		return nil, ErrSiteNotFound
	}
	return m.copySite(siteID), nil
}

// Site returns a scope pinned to one site.
func (m *MemStore) Site(siteID string) sdk.SiteScope {
	return &memSiteScope{store: m, siteID: siteID}
}

type memSiteScope struct {
	store  *MemStore
	siteID string
}

func (s *memSiteScope) Get(key string) (string, error) {
	return s.store.Get(s.siteID, key)
}

func (s *memSiteScope) Set(key, val string) error {
	return s.store.Set(s.siteID, key, val)
}

func (s *memSiteScope) Delete(key string) error {
	return s.store.Delete(s.siteID, key)
}
