package app

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"

	"github.com/fd1az/genip/business/wallet/domain"
)

// Tracker holds the connection state. Reads are open to everyone; writes are
// unexported and performed by the Bridge only.
type Tracker struct {
	requiredChainID uint64

	mu    sync.RWMutex
	state domain.ConnectionState
	// gen advances on every event that changes who or where we are
	// connected. Background results carrying an older gen are dropped.
	gen uint64

	// pubMu orders publishes the same way as the mutations behind them.
	pubMu sync.Mutex
	feed  event.Feed
}

// NewTracker returns a tracker in the empty state.
func NewTracker(requiredChainID uint64) *Tracker {
	return &Tracker{
		requiredChainID: requiredChainID,
		state:           domain.EmptyState(),
	}
}

// Get returns the latest snapshot.
func (t *Tracker) Get() domain.ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot()
}

// FormatAddress shortens the active address, "" when disconnected.
func (t *Tracker) FormatAddress(chars int) string {
	return t.Get().FormatAddress(chars)
}

// RequiredChainID is the chain the connection must be on.
func (t *Tracker) RequiredChainID() uint64 {
	return t.requiredChainID
}

// Subscribe delivers a snapshot after every change. Delivery never blocks
// the writer. While ch is full, intermediate snapshots are coalesced and the
// newest one is delivered as soon as there is room, so the last value a
// subscriber receives always matches Get.
func (t *Tracker) Subscribe(ch chan<- domain.ConnectionState) event.Subscription {
	relay := make(chan domain.ConnectionState)
	sub := t.feed.Subscribe(relay)

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()

		var (
			latest  domain.ConnectionState
			pending bool
		)
		for {
			var out chan<- domain.ConnectionState
			if pending {
				out = ch
			}

			select {
			case s := <-relay:
				select {
				case ch <- s:
					pending = false
				default:
					latest, pending = s, true
				}
			case out <- latest:
				pending = false
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}

// generation returns the current generation.
func (t *Tracker) generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen
}

// update applies fn without changing the generation.
func (t *Tracker) update(fn func(s *domain.ConnectionState)) {
	t.mu.Lock()
	before := t.state.Clone()
	fn(&t.state)
	snap, changed := t.snapshot(), !before.Equal(t.state)
	t.unlockAndPublish(snap, changed)
}

// advance applies fn and starts a new generation, returning it.
func (t *Tracker) advance(fn func(s *domain.ConnectionState)) uint64 {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	fn(&t.state)
	t.unlockAndPublish(t.snapshot(), true)
	return gen
}

// advanceIf is advance guarded by gen; it reports false and leaves the state
// untouched when a newer generation exists.
func (t *Tracker) advanceIf(gen uint64, fn func(s *domain.ConnectionState)) (uint64, bool) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return 0, false
	}
	t.gen++
	next := t.gen
	fn(&t.state)
	t.unlockAndPublish(t.snapshot(), true)
	return next, true
}

// updateIf is update guarded by gen.
func (t *Tracker) updateIf(gen uint64, fn func(s *domain.ConnectionState)) bool {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return false
	}
	before := t.state.Clone()
	fn(&t.state)
	snap, changed := t.snapshot(), !before.Equal(t.state)
	t.unlockAndPublish(snap, changed)
	return true
}

// snapshot must be called with mu held.
func (t *Tracker) snapshot() domain.ConnectionState {
	s := t.state.Clone()
	s.IsCorrectNetwork = s.ChainID != nil && *s.ChainID == t.requiredChainID
	return s
}

// unlockAndPublish releases mu and, when publish is set, sends snap. It must
// be called with mu held; pubMu is taken first so snapshots go out in the
// order the state changed.
func (t *Tracker) unlockAndPublish(snap domain.ConnectionState, publish bool) {
	if !publish {
		t.mu.Unlock()
		return
	}
	t.pubMu.Lock()
	t.mu.Unlock()
	t.feed.Send(snap)
	t.pubMu.Unlock()
}
