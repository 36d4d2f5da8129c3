package registry

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kerrigan/swarm/internal/models"
)

// snapshotEntry is one line item of the persisted registry snapshot.
type snapshotEntry struct {
	ID      string          `json:"id"`
	Session *models.Session `json:"session"`
}

// persistLocked writes the full registry to the state path. Callers must hold
// the mutex. Persistence failures are logged, never fatal.
func (r *Registry) persistLocked() {
	if r.statePath == "" {
		return
	}

	entries := make([]snapshotEntry, 0, len(r.sessions))
	for id, s := range r.sessions {
		entries = append(entries, snapshotEntry{ID: id, Session: s})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		r.log.Warning("marshal session snapshot: %v", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(r.statePath), 0755); err != nil {
		r.log.Warning("create state directory: %v", err)
		return
	}
	if err := os.WriteFile(r.statePath, data, 0644); err != nil {
		r.log.Warning("write session snapshot: %v", err)
	}
}

// load replays a previous snapshot into the registry. A missing file is
// normal on first run; a corrupt file is logged and the registry starts empty.
func (r *Registry) load() {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warning("read session snapshot: %v", err)
		}
		return
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.log.Warning("parse session snapshot: %v", err)
		return
	}

	for _, e := range entries {
		if e.Session == nil || e.ID == "" {
			continue
		}
		r.sessions[e.ID] = e.Session
	}
	if len(r.sessions) > 0 {
		r.log.Info("loaded %d sessions from snapshot", len(r.sessions))
	}
}
