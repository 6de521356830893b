package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Persistence handles the disk I/O for the MemStore: one JSON file per site.
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir}, nil
}

// SaveSite writes a single site's options to a JSON file atomically.
func (p *Persistence) SaveSite(siteID string, options map[string]string) error {
	if err := checkSite(siteID); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.DataDir, fmt.Sprintf("%s.json", siteID))
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(options, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}

	// Rename is atomic on POSIX filesystems: readers see the old file or the new one.
	return os.Rename(tempPath, filePath)
}

// LoadAll returns every site's options found in the data directory.
// Unreadable or malformed files are skipped.
func (p *Persistence) LoadAll() (map[string]map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make(map[string]map[string]string)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		siteID := strings.TrimSuffix(file.Name(), ".json")
		if checkSite(siteID) != nil {
			slog.Warn("skipping site file with invalid name", "file", file.Name())
			continue
		}

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			slog.Warn("could not read site file", "file", file.Name(), "error", err)
			continue
		}

		var options map[string]string
		if err := json.Unmarshal(content, &options); err != nil {
			slog.Warn("could not unmarshal site options", "file", file.Name(), "error", err)
			continue
		}
		all[siteID] = options
	}
	return all, nil
}
