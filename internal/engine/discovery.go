package engine

import (
	"log/slog"

	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

// Open returns a remote client when remoteAddr is set and reachable,
// otherwise an embedded store persisted under dataDir.
// The second return value is non-nil for the embedded store so callers can flush it.
func Open(remoteAddr, dataDir string) (sdk.OptionStore, *MemStore, error) {
	if remoteAddr != "" {
		client, err := sdk.Connect(remoteAddr)
		if err == nil {
			return client, nil, nil
		}
		slog.Warn("remote option store unreachable, falling back to embedded", "addr", remoteAddr, "error", err)
	}

	p, err := NewPersistence(dataDir)
	if err != nil {
		return nil, nil, err
	}

	allData, err := p.LoadAll()
	if err != nil {
		return nil, nil, err
	}

	ms := NewMemStore(allData, p)
	return ms, ms, nil
}
