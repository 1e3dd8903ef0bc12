package parking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"parknet-api-server/internal/clock"
	"parknet-api-server/internal/models"

	"go.uber.org/zap"
)

// slotEntry is the authoritative state of one slot. Every transition of the
// slot, whether from a sensor or from a hold, happens with mu held.
type slotEntry struct {
	mu     sync.Mutex
	number int
	state  models.SlotState
	seq    uint64
	holdID string
}

type facilityEntry struct {
	mu    sync.RWMutex
	meta  models.Facility
	slots map[int]*slotEntry
}

// Registry holds the occupancy of every provisioned slot and publishes each
// transition on the bus before the mutating call returns.
type Registry struct {
	mu         sync.RWMutex
	facilities map[string]*facilityEntry
	holdHook   func(holdID string)

	bus    *Bus
	clock  clock.Clock
	logger *zap.Logger
}

func NewRegistry(bus *Bus, clk clock.Clock, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		facilities: make(map[string]*facilityEntry),
		bus:        bus,
		clock:      clk,
		logger:     logger.Named("registry"),
	}
}

// Provision registers a facility with all its slots Free.
func (r *Registry) Provision(f models.Facility) error {
	id := strings.TrimSpace(f.FacilityID)
	if id == "" {
		return fmt.Errorf("facility id required: %w", ErrInvalidArgument)
	}
	numbers, err := validSlotNumbers(f.SlotNumbers)
	if err != nil {
		return err
	}

	entry := &facilityEntry{slots: make(map[int]*slotEntry, len(numbers))}
	for _, n := range numbers {
		entry.slots[n] = &slotEntry{number: n, state: models.SlotFree}
	}
	entry.meta = f
	entry.meta.FacilityID = id
	entry.meta.SlotNumbers = numbers
	entry.meta.Slots = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.facilities[id]; ok {
		return fmt.Errorf("facility %q: %w", id, ErrAlreadyExists)
	}
	r.facilities[id] = entry
	r.logger.Info("facility provisioned", zap.String("facility", id), zap.Int("slots", len(numbers)))
	return nil
}

// AddSlots extends a facility with new Free slots.
func (r *Registry) AddSlots(facilityID string, numbers ...int) error {
	fac, err := r.facility(facilityID)
	if err != nil {
		return err
	}
	numbers, err = validSlotNumbers(numbers)
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		return fmt.Errorf("no slot numbers given: %w", ErrInvalidArgument)
	}

	fac.mu.Lock()
	defer fac.mu.Unlock()
	for _, n := range numbers {
		if _, ok := fac.slots[n]; ok {
			return fmt.Errorf("slot %d in facility %q: %w", n, facilityID, ErrAlreadyExists)
		}
	}
	for _, n := range numbers {
		fac.slots[n] = &slotEntry{number: n, state: models.SlotFree}
	}
	fac.meta.SlotNumbers = sortedKeys(fac.slots)
	fac.meta.UpdatedAt = r.clock.Now()
	return nil
}

// UpdateMetadata replaces the descriptive fields of a facility. Slots are untouched.
func (r *Registry) UpdateMetadata(f models.Facility) (models.Facility, error) {
	fac, err := r.facility(f.FacilityID)
	if err != nil {
		return models.Facility{}, err
	}
	fac.mu.Lock()
	fac.meta.Name = f.Name
	fac.meta.Address = f.Address
	fac.meta.Rating = f.Rating
	if f.ImageURL != "" {
		fac.meta.ImageURL = f.ImageURL
	}
	fac.meta.UpdatedAt = r.clock.Now()
	fac.mu.Unlock()
	return r.Facility(f.FacilityID)
}

// SetOccupancy is the write entry point for sensors and manual admin toggles.
// If the requested occupancy already holds, nothing is emitted and the returned
// event has PreviousState == NewState. Occupying a Reserved slot counts as the
// holder's arrival and consumes the hold.
func (r *Registry) SetOccupancy(ctx context.Context, facilityID string, number int, occupied bool) (models.ChangeEvent, error) {
	if err := ctx.Err(); err != nil {
		return models.ChangeEvent{}, err
	}
	e, err := r.lockSlot(facilityID, number)
	if err != nil {
		return models.ChangeEvent{}, err
	}
	defer e.mu.Unlock()

	current := e.state
	if current.Occupied() == occupied {
		return models.ChangeEvent{
			FacilityID:    facilityID,
			SlotNumber:    number,
			PreviousState: current,
			NewState:      current,
			Timestamp:     r.clock.Now(),
			Sequence:      e.seq,
			Cause:         models.CauseOccupancy,
		}, nil
	}

	next := models.SlotFree
	cause := models.CauseOccupancy
	if occupied {
		next = models.SlotOccupied
	}
	holdID := e.holdID
	if current == models.SlotReserved {
		cause = models.CauseArrival
		e.holdID = ""
	}
	ev := r.transitionLocked(facilityID, e, next, cause)
	if holdID != "" {
		r.consumeHold(holdID)
	}
	return ev, nil
}

// Snapshot copies the current state of every slot in a facility.
func (r *Registry) Snapshot(facilityID string) (models.Snapshot, error) {
	fac, err := r.facility(facilityID)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap := models.Snapshot{
		FacilityID: facilityID,
		TakenAt:    r.clock.Now(),
	}
	fac.mu.RLock()
	defer fac.mu.RUnlock()
	snap.Slots = make(map[int]models.SlotState, len(fac.slots))
	snap.Sequences = make(map[int]uint64, len(fac.slots))
	for n, e := range fac.slots {
		e.mu.Lock()
		snap.Slots[n] = e.state
		snap.Sequences[n] = e.seq
		e.mu.Unlock()
	}
	return snap, nil
}

// Watch subscribes to a facility and then snapshots it. Events that the snapshot
// already reflects can be told apart with Snapshot.Stale.
func (r *Registry) Watch(facilityID string) (models.Snapshot, *Subscription, error) {
	if _, err := r.facility(facilityID); err != nil {
		return models.Snapshot{}, nil, err
	}
	sub := r.bus.Subscribe(facilityID)
	snap, err := r.Snapshot(facilityID)
	if err != nil {
		sub.Close()
		return models.Snapshot{}, nil, err
	}
	return snap, sub, nil
}

// Facility returns a facility's metadata with its slots ordered by number.
func (r *Registry) Facility(facilityID string) (models.Facility, error) {
	fac, err := r.facility(facilityID)
	if err != nil {
		return models.Facility{}, err
	}
	fac.mu.RLock()
	defer fac.mu.RUnlock()

	out := fac.meta
	out.SlotNumbers = append([]int(nil), fac.meta.SlotNumbers...)
	out.Slots = make([]models.Slot, 0, len(fac.slots))
	for _, n := range out.SlotNumbers {
		e := fac.slots[n]
		e.mu.Lock()
		out.Slots = append(out.Slots, models.Slot{
			FacilityID: out.FacilityID,
			Number:     n,
			State:      e.state,
			Sequence:   e.seq,
		})
		e.mu.Unlock()
	}
	return out, nil
}

// Facilities returns every provisioned facility ordered by id.
func (r *Registry) Facilities() []models.Facility {
	r.mu.RLock()
	ids := make([]string, 0, len(r.facilities))
	for id := range r.facilities {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	out := make([]models.Facility, 0, len(ids))
	for _, id := range ids {
		f, err := r.Facility(id)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (r *Registry) facility(facilityID string) (*facilityEntry, error) {
	r.mu.RLock()
	fac, ok := r.facilities[facilityID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("facility %q: %w", facilityID, ErrNotFound)
	}
	return fac, nil
}

// lockSlot returns the slot with its mutex held. The caller unlocks.
func (r *Registry) lockSlot(facilityID string, number int) (*slotEntry, error) {
	if number <= 0 {
		return nil, fmt.Errorf("slot number %d: %w", number, ErrInvalidArgument)
	}
	fac, err := r.facility(facilityID)
	if err != nil {
		return nil, err
	}
	fac.mu.RLock()
	e, ok := fac.slots[number]
	fac.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("slot %d in facility %q: %w", number, facilityID, ErrNotFound)
	}
	e.mu.Lock()
	return e, nil
}

// transitionLocked moves e to next and publishes the event. e.mu must be held.
func (r *Registry) transitionLocked(facilityID string, e *slotEntry, next models.SlotState, cause models.ChangeCause) models.ChangeEvent {
	e.seq++
	ev := models.ChangeEvent{
		FacilityID:    facilityID,
		SlotNumber:    e.number,
		PreviousState: e.state,
		NewState:      next,
		Timestamp:     r.clock.Now(),
		Sequence:      e.seq,
		Cause:         cause,
	}
	e.state = next
	r.bus.Publish(ev)
	r.logger.Debug("slot changed",
		zap.String("facility", facilityID),
		zap.Int("slot", e.number),
		zap.String("from", string(ev.PreviousState)),
		zap.String("to", string(next)),
		zap.Uint64("sequence", ev.Sequence),
		zap.String("cause", string(cause)),
	)
	return ev
}

func (r *Registry) setHoldHook(fn func(holdID string)) {
	r.mu.Lock()
	r.holdHook = fn
	r.mu.Unlock()
}

func (r *Registry) consumeHold(holdID string) {
	r.mu.RLock()
	fn := r.holdHook
	r.mu.RUnlock()
	if fn != nil {
		fn(holdID)
	}
}

func validSlotNumbers(numbers []int) ([]int, error) {
	seen := make(map[int]struct{}, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if n <= 0 {
			return nil, fmt.Errorf("slot number %d: %w", n, ErrInvalidArgument)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("duplicate slot number %d: %w", n, ErrInvalidArgument)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func sortedKeys(m map[int]*slotEntry) []int {
	out := make([]int, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
