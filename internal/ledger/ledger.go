// ledger.go - Authoritative local store of spendable private notes.
//
// The Ledger holds the notes the user believes are spendable, the records of
// submitted transactions, in-flight reservations, and quarantined notes.
// Every method takes the store mutex; selection and reservation share one
// critical section so two operations can never pick the same note.

package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shieldedamm/internal/notes"
)

var (
	ErrDuplicateCommitment = errors.New("note with this commitment already exists")
	ErrNoteNotFound        = errors.New("note not found in ledger")
	ErrNoteReserved        = errors.New("note is reserved by another operation")
	ErrInsufficientBalance = errors.New("insufficient balance: no single note covers the amount")
	ErrUnknownTransaction  = errors.New("unknown transaction")
	ErrTerminalStatus      = errors.New("transaction status is terminal")
	ErrDuplicateTx         = errors.New("transaction already recorded")

	// ErrNotPersisted wraps persister failures. The mutation is applied in
	// memory and is written by the next successful flush.
	ErrNotPersisted = errors.New("ledger change not persisted")
)

// Ledger is the client's private note store.
type Ledger struct {
	mu         sync.Mutex
	notes      []*notes.Note
	txs        []*Transaction
	quarantine []*QuarantinedNote
	reserved   map[string]string // commitment hex -> operation id
	persister  Persister
	log        zerolog.Logger
}

// New creates an in-memory ledger.
func New(log zerolog.Logger) *Ledger {
	return &Ledger{
		reserved: make(map[string]string),
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// Open loads a ledger from p and persists every later mutation through it.
func Open(p Persister, log zerolog.Logger) (*Ledger, error) {
	snap, err := p.Load()
	if err != nil {
		return nil, err
	}
	l := New(log)
	l.persister = p
	for _, n := range snap.Notes {
		if l.indexOfLocked(n.Commitment) >= 0 {
			l.log.Warn().Str("commitment", n.CommitmentHex()).Msg("dropping duplicate note from snapshot")
			continue
		}
		l.notes = append(l.notes, n)
	}
	for _, tx := range snap.Transactions {
		if err := tx.validate(); err != nil {
			return nil, fmt.Errorf("invalid transaction in snapshot: %w", err)
		}
		l.txs = append(l.txs, tx)
	}
	l.quarantine = snap.Quarantine
	l.log.Debug().Int("notes", len(l.notes)).Int("transactions", len(l.txs)).Msg("ledger loaded")
	return l, nil
}

// AddNote appends a note. A duplicate commitment is logged and rejected.
func (l *Ledger) AddNote(n *notes.Note) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOfLocked(n.Commitment) >= 0 {
		l.log.Warn().Str("commitment", n.CommitmentHex()).Msg("rejecting duplicate note")
		return fmt.Errorf("%w: %s", ErrDuplicateCommitment, n.CommitmentHex())
	}
	l.notes = append(l.notes, n.Clone())
	return l.flushLocked()
}

// RemoveNote removes the note with the given commitment. Absent notes are a no-op.
func (l *Ledger) RemoveNote(commitment *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOfLocked(commitment)
	if i < 0 {
		return nil
	}
	l.removeAtLocked(i)
	return l.flushLocked()
}

// ReplaceNote swaps the note with oldCommitment for next in one step.
// If the old note is missing the new note is still added and a warning is logged.
func (l *Ledger) ReplaceNote(oldCommitment *big.Int, next *notes.Note) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexOfLocked(oldCommitment); i >= 0 {
		l.removeAtLocked(i)
	} else {
		l.log.Warn().Str("commitment", notes.Hex(oldCommitment)).Msg("replace: old note not found, adding new note anyway")
	}
	if l.indexOfLocked(next.Commitment) >= 0 {
		l.log.Warn().Str("commitment", next.CommitmentHex()).Msg("replace: new note already present")
		return l.flushLocked()
	}
	l.notes = append(l.notes, next.Clone())
	return l.flushLocked()
}

// Note returns a copy of the note with the given commitment.
func (l *Ledger) Note(commitment *big.Int) (*notes.Note, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOfLocked(commitment)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, notes.Hex(commitment))
	}
	return l.notes[i].Clone(), nil
}

// Notes returns copies of all notes.
func (l *Ledger) Notes() []*notes.Note {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*notes.Note, len(l.notes))
	for i, n := range l.notes {
		out[i] = n.Clone()
	}
	return out
}

// NotesByAsset returns copies of the notes denominated in assetID.
func (l *Ledger) NotesByAsset(assetID string) []*notes.Note {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*notes.Note
	for _, n := range l.notes {
		if n.AssetID == assetID {
			out = append(out, n.Clone())
		}
	}
	return out
}

// TotalBalance sums the amounts of all notes for assetID, reserved ones included.
func (l *Ledger) TotalBalance(assetID string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := new(big.Int)
	for _, n := range l.notes {
		if n.AssetID == assetID {
			total.Add(total, n.Amount)
		}
	}
	return total
}

// SetTreeIndex records the membership tree index of a note.
func (l *Ledger) SetTreeIndex(commitment *big.Int, index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOfLocked(commitment)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, notes.Hex(commitment))
	}
	l.notes[i].WithTreeIndex(index)
	return l.flushLocked()
}

// SelectAndReserve picks the smallest unreserved note of assetID whose amount
// is at least minAmount and reserves it for opID.
func (l *Ledger) SelectAndReserve(assetID string, minAmount *big.Int, opID string) (*notes.Note, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var best *notes.Note
	for _, n := range l.notes {
		if n.AssetID != assetID || n.Amount.Cmp(minAmount) < 0 {
			continue
		}
		if _, taken := l.reserved[n.CommitmentHex()]; taken {
			continue
		}
		if best == nil || n.Amount.Cmp(best.Amount) < 0 {
			best = n
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: need %s of %s", ErrInsufficientBalance, minAmount, assetID)
	}
	l.reserved[best.CommitmentHex()] = opID
	return best.Clone(), nil
}

// Reserve marks a specific note as in use by opID.
func (l *Ledger) Reserve(commitment *big.Int, opID string) (*notes.Note, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOfLocked(commitment)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, notes.Hex(commitment))
	}
	key := notes.Hex(commitment)
	if owner, taken := l.reserved[key]; taken && owner != opID {
		return nil, fmt.Errorf("%w: %s", ErrNoteReserved, key)
	}
	l.reserved[key] = opID
	return l.notes[i].Clone(), nil
}

// Release drops the reservation held by opID. Other owners' reservations are left alone.
func (l *Ledger) Release(commitment *big.Int, opID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := notes.Hex(commitment)
	if owner, ok := l.reserved[key]; ok && owner == opID {
		delete(l.reserved, key)
	}
}

// Reserved reports whether a note is currently reserved.
func (l *Ledger) Reserved(commitment *big.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.reserved[notes.Hex(commitment)]
	return ok
}

// Quarantine moves a note out of the spendable set. Its reservation is dropped.
func (l *Ledger) Quarantine(commitment *big.Int, reason, txRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOfLocked(commitment)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, notes.Hex(commitment))
	}
	n := l.notes[i]
	l.removeAtLocked(i)
	l.quarantine = append(l.quarantine, &QuarantinedNote{
		Note:   n,
		Reason: reason,
		TxRef:  txRef,
		At:     time.Now().UTC(),
	})
	l.log.Warn().Str("commitment", n.CommitmentHex()).Str("tx", txRef).Str("reason", reason).Msg("note quarantined")
	return l.flushLocked()
}

// Quarantined returns copies of the quarantined notes.
func (l *Ledger) Quarantined() []*QuarantinedNote {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*QuarantinedNote, len(l.quarantine))
	for i, q := range l.quarantine {
		c := *q
		c.Note = q.Note.Clone()
		out[i] = &c
	}
	return out
}

// AddTransaction stores a new record.
func (l *Ledger) AddTransaction(tx *Transaction) error {
	if err := tx.validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.txIndexLocked(tx.Ref) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTx, tx.Ref)
	}
	l.txs = append(l.txs, tx.clone())
	return l.flushLocked()
}

// UpdateTransactionStatus moves a pending record to success or failed.
func (l *Ledger) UpdateTransactionStatus(ref string, status Status, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.txIndexLocked(ref)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, ref)
	}
	tx := l.txs[i]
	if tx.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalStatus, ref, tx.Status)
	}
	if !status.Terminal() {
		return fmt.Errorf("invalid transition %s -> %s", tx.Status, status)
	}
	tx.Status = status
	tx.Reason = reason
	tx.Pending = nil
	tx.UpdatedAt = time.Now().UTC()
	return l.flushLocked()
}

// SetTransactionRef renames a record, once the chain has assigned the
// transaction hash.
func (l *Ledger) SetTransactionRef(ref, next string) error {
	if next == "" {
		return fmt.Errorf("transaction ref is empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.txIndexLocked(ref)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, ref)
	}
	if l.txIndexLocked(next) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTx, next)
	}
	l.txs[i].Ref = next
	l.txs[i].UpdatedAt = time.Now().UTC()
	return l.flushLocked()
}

// SetTransactionReason annotates a record without changing its status.
func (l *Ledger) SetTransactionReason(ref, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.txIndexLocked(ref)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, ref)
	}
	l.txs[i].Reason = reason
	l.txs[i].UpdatedAt = time.Now().UTC()
	return l.flushLocked()
}

// Flush writes the current state through the persister.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// SetTransactionOutputs records the output commitments of a transaction.
func (l *Ledger) SetTransactionOutputs(ref string, outputs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.txIndexLocked(ref)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, ref)
	}
	l.txs[i].Outputs = append([]string(nil), outputs...)
	return l.flushLocked()
}

// Transaction returns a copy of the record with the given ref.
func (l *Ledger) Transaction(ref string) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.txIndexLocked(ref)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, ref)
	}
	return l.txs[i].clone(), nil
}

// Transactions returns copies of all records, newest first.
func (l *Ledger) Transactions() []*Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Transaction, len(l.txs))
	for i, tx := range l.txs {
		out[i] = tx.clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (l *Ledger) indexOfLocked(commitment *big.Int) int {
	for i, n := range l.notes {
		if n.Commitment.Cmp(commitment) == 0 {
			return i
		}
	}
	return -1
}

func (l *Ledger) txIndexLocked(ref string) int {
	for i, tx := range l.txs {
		if tx.Ref == ref {
			return i
		}
	}
	return -1
}

func (l *Ledger) removeAtLocked(i int) {
	delete(l.reserved, l.notes[i].CommitmentHex())
	l.notes = append(l.notes[:i], l.notes[i+1:]...)
}

func (l *Ledger) flushLocked() error {
	if l.persister == nil {
		return nil
	}
	snap := &Snapshot{
		Notes:        l.notes,
		Transactions: l.txs,
		Quarantine:   l.quarantine,
	}
	if err := l.persister.Save(snap); err != nil {
		l.log.Error().Err(err).Msg("failed to persist ledger")
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	return nil
}
