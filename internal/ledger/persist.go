// persist.go - Ledger snapshot and the JSON file backend.

package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shieldedamm/internal/notes"
)

// QuarantinedNote is a note whose nullifier may already be spent on-chain.
// It is kept for manual recovery and never selected again.
type QuarantinedNote struct {
	Note   *notes.Note `json:"note"`
	Reason string      `json:"reason"`
	TxRef  string      `json:"tx_ref,omitempty"`
	At     time.Time   `json:"at"`
}

// Snapshot is the full persisted state of a Store.
type Snapshot struct {
	Notes        []*notes.Note      `json:"notes"`
	Transactions []*Transaction     `json:"transactions"`
	Quarantine   []*QuarantinedNote `json:"quarantine,omitempty"`
}

// Persister stores and restores ledger snapshots.
type Persister interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

// JSONFile persists the ledger as a single indented JSON document.
type JSONFile struct {
	Path string
}

// Load reads the snapshot. A missing file is an empty ledger.
func (j JSONFile) Load() (*Snapshot, error) {
	f, err := os.Open(j.Path)
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer f.Close()

	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode ledger file: %w", err)
	}
	return &snap, nil
}

// Save writes to a temp file and renames it over the ledger file.
func (j JSONFile) Save(snap *Snapshot) error {
	dir := filepath.Dir(j.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), j.Path)
}
