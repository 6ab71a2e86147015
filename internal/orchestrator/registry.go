package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
)

// ErrKeyConflict is returned when a client idempotency key is reused with a
// request that does not match the one it was first bound to.
var ErrKeyConflict = errors.New("idempotency key reused with a different request")

type registryEntry struct {
	machine     *Machine
	clientKey   string
	fingerprint string
	touched     time.Time
}

// Registry tracks live attempt machines by transfer id so HTTP callers can
// confirm, poll state, retry and cancel across requests. Each attempt is
// bound to the client idempotency key that created it: a re-sent
// confirmation resolves to the existing machine instead of minting a new
// one, so a transport-level retry cannot submit the movement twice.
type Registry struct {
	factory func(scope string) *Machine
	now     func() time.Time

	mu       sync.Mutex
	machines map[string]*registryEntry
	byKey    map[string]string
}

func NewRegistry(factory func(scope string) *Machine) *Registry {
	return &Registry{
		factory:  factory,
		now:      time.Now,
		machines: make(map[string]*registryEntry),
		byKey:    make(map[string]string),
	}
}

// CreateOrGet resolves the client key to its attempt, creating a new machine
// on first sight. The fingerprint pins the key to the request that created
// it; reuse with a different fingerprint is a conflict. The third return
// reports whether the attempt already existed.
func (r *Registry) CreateOrGet(clientKey, fingerprint string) (string, *Machine, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[clientKey]; ok {
		entry := r.machines[id]
		if entry.fingerprint != fingerprint {
			return "", nil, false, ErrKeyConflict
		}
		entry.touched = r.now()
		return id, entry.machine, true, nil
	}

	id := uuid.NewString()
	entry := &registryEntry{
		machine:     r.factory(id),
		clientKey:   clientKey,
		fingerprint: fingerprint,
		touched:     r.now(),
	}
	r.machines[id] = entry
	r.byKey[clientKey] = id
	return id, entry.machine, false, nil
}

// Get returns the machine for a transfer id.
func (r *Registry) Get(id string) (*Machine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.machines[id]
	if !ok {
		return nil, false
	}
	entry.touched = r.now()
	return entry.machine, true
}

// Release unbinds and removes an attempt that produced no network effect,
// so the client key becomes usable for a corrected request.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.machines[id]
	if !ok {
		return
	}
	delete(r.byKey, entry.clientKey)
	delete(r.machines, id)
}

// Evict removes finished attempts untouched for longer than the retention
// window and reports how many were dropped. In-flight attempts are never
// evicted.
func (r *Registry) Evict(olderThan time.Duration) int {
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, entry := range r.machines {
		if entry.touched.After(cutoff) {
			continue
		}
		if !domain.IsTerminalState(entry.machine.Snapshot().State) {
			continue
		}
		delete(r.byKey, entry.clientKey)
		delete(r.machines, id)
		evicted++
	}
	return evicted
}

// Len reports the number of tracked attempts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}
