package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"epg-encoder/internal/epgstation"
)

// Repository defines the concurrency-safe contract for accessing and mutating
// the run state of items. The pipeline is the only writer; status handlers read.
type Repository interface {
	// Enqueue records items as pending in the given order.
	// Items already known are left untouched.
	Enqueue(items []Item)

	// Advance moves an item to the next state of the pipeline. to must be the
	// direct successor of the current state.
	Advance(id epgstation.RecordedID, to State) error

	// Abort moves a non-terminal item to StateAborted and records cause and
	// the stage that failed.
	Abort(id epgstation.RecordedID, stage Stage, cause error) error

	// Get returns a copy of the status of one item.
	Get(id epgstation.RecordedID) (ItemStatus, bool)

	// Snapshot returns copies of all statuses in enqueue order.
	Snapshot() []ItemStatus

	// PendingCount returns the number of items still in StatePending.
	// Used for metrics.
	PendingCount() int
}

var (
	// ErrUnknownItem is returned for an id that was never enqueued.
	ErrUnknownItem = errors.New("unknown item")

	// ErrItemFinished is returned when mutating an item in a terminal state.
	ErrItemFinished = errors.New("item already finished")

	// ErrInvalidTransition is returned when a state is skipped or repeated.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
	now   func() time.Time
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue implements Repository.Enqueue.
func (r *InMemoryRepository) Enqueue(items []Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, it := range items {
		if _, exists := r.store.GetItem(it.RecordedID); exists {
			continue
		}
		r.store.SetItem(&ItemStatus{
			Item:      it,
			State:     StatePending,
			QueuedAt:  now,
			UpdatedAt: now,
		})
	}
}

// Advance implements Repository.Advance.
func (r *InMemoryRepository) Advance(id epgstation.RecordedID, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.getLiveLocked(id)
	if err != nil {
		return err
	}
	want, _ := st.State.next()
	if to != want {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.State, to)
	}

	st.State = to
	st.UpdatedAt = r.now()
	switch to {
	case StateDownloading:
		st.Stage = StageDownload
	case StateTranscoding:
		st.Stage = StageTranscode
	case StateUploading:
		st.Stage = StageUpload
	case StateCleaningUp:
		st.Stage = StageCleanup
	case StateDone:
		st.Stage = ""
		st.FinishedAt = st.UpdatedAt
	}
	return nil
}

// Abort implements Repository.Abort.
func (r *InMemoryRepository) Abort(id epgstation.RecordedID, stage Stage, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.getLiveLocked(id)
	if err != nil {
		return err
	}
	st.State = StateAborted
	st.Stage = stage
	if cause != nil {
		st.Error = cause.Error()
	}
	st.UpdatedAt = r.now()
	st.FinishedAt = st.UpdatedAt
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id epgstation.RecordedID) (ItemStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.store.GetItem(id)
	if !ok {
		return ItemStatus{}, false
	}
	return *st, true
}

// Snapshot implements Repository.Snapshot.
func (r *InMemoryRepository) Snapshot() []ItemStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.ListItemIDs()
	out := make([]ItemStatus, 0, len(ids))
	for _, id := range ids {
		if st, ok := r.store.GetItem(id); ok {
			out = append(out, *st)
		}
	}
	return out
}

// PendingCount implements Repository.PendingCount.
func (r *InMemoryRepository) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListItemIDs() {
		if st, ok := r.store.GetItem(id); ok && st.State == StatePending {
			n++
		}
	}
	return n
}

// getLiveLocked returns a stored, non-terminal item.
// Caller must hold r.mu in write mode.
func (r *InMemoryRepository) getLiveLocked(id epgstation.RecordedID) (*ItemStatus, error) {
	st, ok := r.store.GetItem(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	if st.State.Terminal() {
		return nil, fmt.Errorf("%w: %d is %s", ErrItemFinished, id, st.State)
	}
	return st, nil
}
