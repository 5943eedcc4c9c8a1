package orchestrator

import (
	"sync"
	"time"

	"shieldedamm/internal/ledger"
)

// State is a pipeline stage.
type State string

const (
	StateIdle                    State = "idle"
	StateFetchingMembershipProof State = "fetching_membership_proof"
	StateGeneratingWitness       State = "generating_witness"
	StateComputingProof          State = "computing_proof"
	StateFormatting              State = "formatting"
	StateSubmitting              State = "submitting"
	StateComplete                State = "complete"
	StateError                   State = "error"
)

// Terminal reports whether the state ends an operation.
func (s State) Terminal() bool { return s == StateComplete || s == StateError }

// Progress is one state transition of one operation.
type Progress struct {
	OpID  string
	Kind  ledger.Kind
	State State
	Err   error // set when State is StateError
	At    time.Time
}

// subscriberBuffer is the per-subscriber queue length. Events beyond it are
// dropped for that subscriber.
const subscriberBuffer = 64

type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Progress
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Progress)}
}

func (b *broadcaster) subscribe() (<-chan Progress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Progress, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
}
