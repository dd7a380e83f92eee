package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rewardLedger/internal/ledger"
	"rewardLedger/internal/storage/postgres"
)

// Store persists ledger snapshots between runs.
type Store interface {
	Load(ctx context.Context) (ledger.Snapshot, bool, error)
	Save(ctx context.Context, snap ledger.Snapshot) error
}

type record struct {
	Snapshot  ledger.Snapshot `json:"snapshot"`
	UpdatedAt string          `json:"updated_at"`
}

// FileStore stores the snapshot in a local JSON file.
type FileStore struct {
	Path string
}

func (s *FileStore) Load(ctx context.Context) (ledger.Snapshot, bool, error) {
	if s == nil || s.Path == "" {
		return ledger.Snapshot{}, false, nil
	}

	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return ledger.Snapshot{}, false, nil
		}
		return ledger.Snapshot{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return ledger.Snapshot{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("read state: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("parse state: %w", err)
	}
	return rec.Snapshot, true, nil
}

// Save writes through a temp file and renames it into place.
func (s *FileStore) Save(ctx context.Context, snap ledger.Snapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(record{
		Snapshot:  snap,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// DBStore stores the snapshot in the ledger_state table.
type DBStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStore) Load(ctx context.Context) (ledger.Snapshot, bool, error) {
	if s == nil || s.Store == nil {
		return ledger.Snapshot{}, false, nil
	}
	doc, ok, err := s.Store.LoadState(ctx, s.Name)
	if err != nil || !ok {
		return ledger.Snapshot{}, false, err
	}
	var snap ledger.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("parse state %s: %w", s.Name, err)
	}
	return snap, true, nil
}

func (s *DBStore) Save(ctx context.Context, snap ledger.Snapshot) error {
	if s == nil || s.Store == nil {
		return nil
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.Store.SaveState(ctx, s.Name, doc)
}
