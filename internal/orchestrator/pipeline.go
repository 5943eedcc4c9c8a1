package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/retry"
	"shieldedamm/internal/transactions"
	"shieldedamm/internal/txerr"
	"shieldedamm/internal/validator"
)

// op is one run of the pipeline. It is owned by a single goroutine.
type op struct {
	o       *Orchestrator
	id      string
	kind    ledger.Kind
	state   State
	entered time.Time
	held    []*big.Int // reserved input commitments
	log     zerolog.Logger
}

func (o *Orchestrator) begin(kind ledger.Kind) *op {
	id := o.newOpID()
	p := &op{
		o:       o,
		id:      id,
		kind:    kind,
		state:   StateIdle,
		entered: time.Now(),
		log:     o.log.With().Str("op_id", id).Str("kind", string(kind)).Logger(),
	}
	o.active.Store(id, struct{}{})
	o.progress.publish(Progress{OpID: id, Kind: kind, State: StateIdle, At: p.entered})
	return p
}

func (p *op) to(s State) {
	now := time.Now()
	p.o.metrics.RecordStateDuration(string(p.kind), string(p.state), now.Sub(p.entered))
	p.log.Debug().Str("from", string(p.state)).Str("to", string(s)).Msg("state transition")
	p.state = s
	p.entered = now
	p.o.progress.publish(Progress{OpID: p.id, Kind: p.kind, State: s, At: now})
}

// fail freezes the op in its current state, releases its reservations and
// returns err wrapped in an OpError.
func (p *op) fail(err error) error {
	failed := p.state
	p.release()
	p.o.active.Delete(p.id)

	opErr := &OpError{OpID: p.id, Kind: p.kind, State: failed, Err: err}
	p.log.Error().Err(err).Str("state", string(failed)).Msg("operation failed")
	p.o.metrics.RecordError(errorType(err))
	p.o.metrics.RecordOperation(string(p.kind), "error")

	p.state = StateError
	p.o.progress.publish(Progress{OpID: p.id, Kind: p.kind, State: StateError, Err: opErr, At: time.Now()})
	return opErr
}

func (p *op) complete() {
	p.release()
	p.o.active.Delete(p.id)
	p.to(StateComplete)
	p.o.metrics.RecordOperation(string(p.kind), "success")
	p.o.recordBalances()
}

func (p *op) hold(n *notes.Note) {
	p.held = append(p.held, n.Commitment)
}

func (p *op) release() {
	for _, cm := range p.held {
		p.o.ledger.Release(cm, p.id)
	}
	p.held = nil
}

// reserve picks the input note: the note with commitment when it is set,
// otherwise the smallest note of asset covering minAmount.
func (p *op) reserve(commitment *big.Int, asset string, minAmount *big.Int) (*notes.Note, error) {
	var (
		n   *notes.Note
		err error
	)
	if commitment != nil {
		n, err = p.o.ledger.Reserve(commitment, p.id)
	} else {
		n, err = p.o.ledger.SelectAndReserve(asset, minAmount, p.id)
	}
	if err != nil {
		return nil, precondition(p.kind, "input note unavailable", err)
	}
	p.hold(n)
	if asset != "" && n.AssetID != asset {
		return nil, precondition(p.kind, fmt.Sprintf("note %s holds %s, not %s", n.CommitmentHex(), n.AssetID, asset), nil)
	}
	if minAmount != nil && n.Amount.Cmp(minAmount) < 0 {
		return nil, precondition(p.kind, fmt.Sprintf("note amount %s is below %s", n.Amount, minAmount), ledger.ErrInsufficientBalance)
	}
	return n, nil
}

func (p *op) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.o.opts.CallTimeout)
}

// fetchMembership returns the membership proof of n. A note without an index,
// or one claiming an index past the tree size, is looked up by commitment
// first; the index found is written back to the ledger.
func (p *op) fetchMembership(ctx context.Context, n *notes.Note) (*collab.MembershipProof, error) {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()

	size, err := p.o.tree.TreeSize(cctx)
	if err != nil {
		return nil, fmt.Errorf("tree size: %w", err)
	}
	if n.TreeIndex == nil || size <= *n.TreeIndex {
		index, found, err := p.o.tree.FindIndexByCommitment(cctx, n.Commitment)
		if err != nil {
			return nil, fmt.Errorf("find commitment: %w", err)
		}
		if !found {
			return nil, &txerr.SyncError{
				Commitment: n.CommitmentHex(),
				Index:      n.TreeIndex,
				TreeSize:   size,
				Err:        txerr.ErrNoteNotOnLedger,
			}
		}
		p.log.Info().Str("commitment", n.CommitmentHex()).Uint64("index", index).Msg("recovered tree index by commitment")
		if err := p.o.ledger.SetTreeIndex(n.Commitment, index); err != nil {
			p.log.Warn().Err(err).Msg("could not store recovered tree index")
		}
		n.WithTreeIndex(index)
	}

	mp, err := p.o.tree.MembershipProof(cctx, *n.TreeIndex)
	if err != nil {
		return nil, fmt.Errorf("membership proof for index %d: %w", *n.TreeIndex, err)
	}
	return mp, nil
}

// validate checks n against the leaf in mp, falling back to the tree when
// the proof is for another index.
func (p *op) validate(ctx context.Context, n *notes.Note, mp *collab.MembershipProof) error {
	lookup := func(ctx context.Context, index uint64) (*big.Int, error) {
		if mp != nil && mp.Leaf != nil && n.TreeIndex != nil && *n.TreeIndex == index {
			return mp.Leaf, nil
		}
		cctx, cancel := p.callCtx(ctx)
		defer cancel()
		other, err := p.o.tree.MembershipProof(cctx, index)
		if err != nil {
			return nil, err
		}
		return other.Leaf, nil
	}
	res, err := validator.Validate(ctx, n, lookup)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		var mismatch *txerr.DataMismatchError
		if errors.As(err, &mismatch) {
			mismatch.Amount = n.Amount.String()
		}
		return err
	}
	return nil
}

// spendable runs the membership and validation steps for one input note.
func (p *op) spendable(ctx context.Context, n *notes.Note) (*collab.MembershipProof, error) {
	p.to(StateFetchingMembershipProof)
	mp, err := p.fetchMembership(ctx, n)
	if err != nil {
		return nil, err
	}
	if err := p.validate(ctx, n, mp); err != nil {
		return nil, err
	}
	return mp, nil
}

// prove requests a proof under timeout and formats it.
func (p *op) prove(ctx context.Context, req *collab.ProofRequest, timeout time.Duration) (*transactions.FormattedProof, error) {
	p.to(StateComputingProof)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	blob, err := p.o.prover.GenerateProof(pctx, req)
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &txerr.ProofTimeoutError{Op: string(p.kind), Timeout: timeout, Err: err}
		}
		return nil, fmt.Errorf("generate %s proof: %w", req.Kind, err)
	}
	elapsed := time.Since(start)
	p.o.metrics.RecordProofGeneration(string(req.Kind), elapsed)
	p.log.Info().Dur("elapsed", elapsed).Msg("proof generated")

	p.to(StateFormatting)
	return transactions.FormatProof(req.Kind, blob, p.log)
}

// submission is a confirmed transaction.
type submission struct {
	ref     collab.TxRef
	record  string // ledger record ref, ref unless the rename failed
	receipt *collab.Receipt
}

// persisted drops ledger.ErrNotPersisted: the change is live in memory and
// the next flush writes it. Any other error is returned.
func (p *op) persisted(err error, what string) error {
	if err == nil || !errors.Is(err, ledger.ErrNotPersisted) {
		return err
	}
	p.log.Error().Err(err).Msg(what + " kept in memory only")
	p.o.metrics.RecordError("persistence")
	return nil
}

// submit writes a pending record, sends calls and waits for confirmation.
// A failure before the broadcast fails the record and leaves the inputs
// spendable. Past that point the inputs' nullifiers may be on chain: they are
// quarantined, and the record keeps the outputs for Reconcile.
func (p *op) submit(ctx context.Context, inputs, outputs []*notes.Note, calls ...collab.Call) (*submission, error) {
	p.to(StateSubmitting)
	l := p.o.ledger

	record := "op:" + p.id
	tx := ledger.NewTransaction(record, p.kind, p.id)
	for _, n := range inputs {
		tx.Spent = append(tx.Spent, n.CommitmentHex())
	}
	tx.Pending = outputs
	if err := p.persisted(l.AddTransaction(tx), "pending record"); err != nil {
		return nil, fmt.Errorf("record %s: %w", p.kind, err)
	}

	sctx, cancel := p.callCtx(ctx)
	ref, err := p.o.chain.Submit(sctx, calls...)
	cancel()
	if errors.Is(err, collab.ErrNotSent) {
		p.closeRecord(record, ledger.StatusFailed, err.Error())
		return nil, fmt.Errorf("submit %s: %w", p.kind, err)
	}
	if err != nil {
		err = fmt.Errorf("submit %s: %w: %w", p.kind, txerr.ErrOutcomeUnknown, err)
		p.unresolved(record, inputs, err.Error())
		return nil, err
	}
	if err := p.persisted(l.SetTransactionRef(record, string(ref)), "record ref"); err != nil {
		p.log.Error().Err(err).Str("tx", string(ref)).Str("record", record).Msg("could not rename record")
	} else {
		record = string(ref)
	}
	p.log.Info().Str("tx", string(ref)).Msg("transaction submitted")

	cctx, cancel := context.WithTimeout(ctx, p.o.opts.ConfirmTimeout)
	defer cancel()
	rec, err := p.o.chain.AwaitConfirmation(cctx, ref)
	if err != nil {
		err = fmt.Errorf("await %s: %w: %w", ref, txerr.ErrOutcomeUnknown, err)
		p.unresolved(record, inputs, err.Error())
		return nil, err
	}
	if rec.Status == collab.StatusReverted {
		p.closeRecord(record, ledger.StatusFailed, rec.RevertReason)
		p.quarantine(record, inputs, rec.RevertReason)
		return nil, txerr.NewChainRejection(string(ref), rec.RevertReason)
	}
	return &submission{ref: ref, record: record, receipt: rec}, nil
}

func (p *op) closeRecord(record string, status ledger.Status, reason string) {
	if err := p.persisted(p.o.ledger.UpdateTransactionStatus(record, status, reason), "record status"); err != nil {
		p.log.Error().Err(err).Str("record", record).Str("status", string(status)).Msg("could not update record")
	}
}

// unresolved leaves the record pending with its outputs and quarantines the
// inputs. Reconcile settles it once the tree shows the outcome.
func (p *op) unresolved(record string, inputs []*notes.Note, reason string) {
	if err := p.persisted(p.o.ledger.SetTransactionReason(record, reason), "record reason"); err != nil {
		p.log.Error().Err(err).Str("record", record).Msg("could not annotate record")
	}
	p.quarantine(record, inputs, reason)
}

// quarantine moves the inputs out of the spendable set for good.
func (p *op) quarantine(record string, inputs []*notes.Note, reason string) {
	for _, n := range inputs {
		if err := p.persisted(p.o.ledger.Quarantine(n.Commitment, reason, record), "quarantine"); err != nil {
			p.log.Error().Err(err).Str("commitment", n.CommitmentHex()).Msg("could not quarantine input")
		}
	}
	p.o.recordBalances()
}

// indexOutputs attaches tree indexes to outputs from the receipt, polling the
// tree for any the receipt does not carry. A missing index is logged, not fatal.
func (p *op) indexOutputs(ctx context.Context, sub *submission, outputs []*notes.Note) {
	for _, n := range outputs {
		if idx, ok := chain.DepositIndex(sub.receipt, n.Commitment); ok {
			n.WithTreeIndex(idx)
			continue
		}
		var found uint64
		err := retry.Do(ctx, p.o.opts.IndexPoll, func(ctx context.Context) error {
			cctx, cancel := p.callCtx(ctx)
			defer cancel()
			idx, ok, err := p.o.tree.FindIndexByCommitment(cctx, n.Commitment)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("commitment not in tree yet")
			}
			found = idx
			return nil
		})
		if err != nil {
			p.log.Warn().Err(err).Str("commitment", n.CommitmentHex()).Msg("output index unknown, reconcile later")
			continue
		}
		n.WithTreeIndex(found)
	}
}

// finalize swaps inputs for outputs in the ledger and closes the record. The
// chain has confirmed the transaction, so nothing here fails the operation.
func (p *op) finalize(ctx context.Context, sub *submission, inputs, outputs []*notes.Note) {
	p.indexOutputs(ctx, sub, outputs)

	l := p.o.ledger
	if len(inputs) == 1 && len(outputs) == 1 {
		if err := p.persisted(l.ReplaceNote(inputs[0].Commitment, outputs[0]), "note replacement"); err != nil {
			p.log.Error().Err(err).Str("commitment", outputs[0].CommitmentHex()).Msg("could not replace note")
		}
	} else {
		for _, n := range inputs {
			if err := p.persisted(l.RemoveNote(n.Commitment), "note removal"); err != nil {
				p.log.Error().Err(err).Str("commitment", n.CommitmentHex()).Msg("could not remove spent note")
			}
		}
		for _, n := range outputs {
			if err := p.persisted(l.AddNote(n), "output note"); err != nil {
				p.log.Warn().Err(err).Str("commitment", n.CommitmentHex()).Msg("output note not added")
			}
		}
	}

	if len(outputs) > 0 {
		hexes := make([]string, len(outputs))
		for i, n := range outputs {
			hexes[i] = n.CommitmentHex()
		}
		if err := p.persisted(l.SetTransactionOutputs(sub.record, hexes), "record outputs"); err != nil {
			p.log.Warn().Err(err).Str("record", sub.record).Msg("could not record outputs")
		}
	}
	p.closeRecord(sub.record, ledger.StatusSuccess, "")
	p.complete()
}
