// leveldb.go - LevelDB ledger backend.
//
// Keys:
//   note_<commitment hex> -> note JSON
//   tx_<ref>              -> transaction JSON
//   qn_<commitment hex>   -> quarantined note JSON

package ledger

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"shieldedamm/internal/notes"
)

const (
	notePrefix       = "note_"
	txPrefix         = "tx_"
	quarantinePrefix = "qn_"
)

// LevelDB persists one key per note, transaction, and quarantined note.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates the store at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	return &LevelDB{db: db}, nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Load reads every entry back into a snapshot.
func (l *LevelDB) Load() (*Snapshot, error) {
	snap := &Snapshot{}
	err := l.scan(notePrefix, func(v []byte) error {
		var n notes.Note
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		snap.Notes = append(snap.Notes, &n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = l.scan(txPrefix, func(v []byte) error {
		var tx Transaction
		if err := json.Unmarshal(v, &tx); err != nil {
			return err
		}
		snap.Transactions = append(snap.Transactions, &tx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = l.scan(quarantinePrefix, func(v []byte) error {
		var q QuarantinedNote
		if err := json.Unmarshal(v, &q); err != nil {
			return err
		}
		snap.Quarantine = append(snap.Quarantine, &q)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(snap.Notes, func(i, j int) bool {
		return snap.Notes[i].CreatedAt.Before(snap.Notes[j].CreatedAt)
	})
	sort.SliceStable(snap.Transactions, func(i, j int) bool {
		return snap.Transactions[i].CreatedAt.Before(snap.Transactions[j].CreatedAt)
	})
	sort.SliceStable(snap.Quarantine, func(i, j int) bool {
		return snap.Quarantine[i].At.Before(snap.Quarantine[j].At)
	})
	return snap, nil
}

// Save replaces the stored state in one atomic batch.
func (l *LevelDB) Save(snap *Snapshot) error {
	batch := new(leveldb.Batch)
	for _, prefix := range []string{notePrefix, txPrefix, quarantinePrefix} {
		iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for iter.Next() {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return err
		}
	}

	for _, n := range snap.Notes {
		if err := putJSON(batch, notePrefix+notes.Hex(n.Commitment), n); err != nil {
			return err
		}
	}
	for _, tx := range snap.Transactions {
		if err := putJSON(batch, txPrefix+tx.Ref, tx); err != nil {
			return err
		}
	}
	for _, q := range snap.Quarantine {
		if err := putJSON(batch, quarantinePrefix+notes.Hex(q.Note.Commitment), q); err != nil {
			return err
		}
	}
	return l.db.Write(batch, nil)
}

func (l *LevelDB) scan(prefix string, fn func([]byte) error) error {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
	}
	return iter.Error()
}

func putJSON(batch *leveldb.Batch, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	batch.Put([]byte(key), data)
	return nil
}
