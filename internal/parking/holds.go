package parking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"parknet-api-server/internal/clock"
	"parknet-api-server/internal/metrics"
	"parknet-api-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultHoldTTL = 15 * time.Minute
	MaxHoldTTL     = 2 * time.Hour
)

type HoldOption func(*HoldManager)

func WithDefaultTTL(d time.Duration) HoldOption {
	return func(m *HoldManager) {
		if d > 0 {
			m.defaultTTL = d
		}
	}
}

func WithMaxTTL(d time.Duration) HoldOption {
	return func(m *HoldManager) {
		if d > 0 {
			m.maxTTL = d
		}
	}
}

func WithHoldMetrics(mt *metrics.Metrics) HoldOption {
	return func(m *HoldManager) { m.metrics = mt }
}

// HoldManager grants time-bounded exclusive holds on Free slots. Every state
// change goes through the registry's slot lock, so holds, sensor writes and
// the expiry sweeper are linearizable per slot.
type HoldManager struct {
	registry *Registry
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics

	defaultTTL time.Duration
	maxTTL     time.Duration

	mu    sync.Mutex
	holds map[string]models.Hold
}

func NewHoldManager(reg *Registry, clk clock.Clock, logger *zap.Logger, opts ...HoldOption) *HoldManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HoldManager{
		registry:   reg,
		clock:      clk,
		logger:     logger.Named("holds"),
		defaultTTL: DefaultHoldTTL,
		maxTTL:     MaxHoldTTL,
		holds:      make(map[string]models.Hold),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.defaultTTL > m.maxTTL {
		m.defaultTTL = m.maxTTL
	}
	reg.setHoldHook(m.consumed)
	return m
}

func (m *HoldManager) DefaultTTL() time.Duration { return m.defaultTTL }

func (m *HoldManager) MaxTTL() time.Duration { return m.maxTTL }

type RequestHoldInput struct {
	FacilityID string
	SlotNumber int
	HolderID   string
	TTL        time.Duration
}

// RequestHold reserves a Free slot for in.HolderID until now+TTL.
func (m *HoldManager) RequestHold(ctx context.Context, in RequestHoldInput) (models.Hold, error) {
	if err := ctx.Err(); err != nil {
		return models.Hold{}, err
	}
	holder := strings.TrimSpace(in.HolderID)
	switch {
	case in.SlotNumber <= 0:
		return models.Hold{}, fmt.Errorf("slot number %d: %w", in.SlotNumber, ErrInvalidArgument)
	case holder == "":
		return models.Hold{}, fmt.Errorf("holder id required: %w", ErrInvalidArgument)
	case in.TTL <= 0:
		return models.Hold{}, fmt.Errorf("ttl %s must be positive: %w", in.TTL, ErrInvalidArgument)
	case in.TTL > m.maxTTL:
		return models.Hold{}, fmt.Errorf("ttl %s exceeds %s: %w", in.TTL, m.maxTTL, ErrInvalidArgument)
	}

	e, err := m.registry.lockSlot(in.FacilityID, in.SlotNumber)
	if err != nil {
		return models.Hold{}, err
	}
	defer e.mu.Unlock()

	now := m.clock.Now()
	if e.state == models.SlotReserved && e.holdID != "" {
		if prev, ok := m.lookup(e.holdID); ok && prev.Expired(now) {
			m.endLocked(e, prev, models.SlotFree, models.CauseExpiry, models.HoldExpired)
		}
	}
	if e.state != models.SlotFree {
		return models.Hold{}, fmt.Errorf("slot %d in facility %q is %s: %w",
			in.SlotNumber, in.FacilityID, e.state, ErrSlotUnavailable)
	}

	h := models.Hold{
		ID:         uuid.NewString(),
		FacilityID: in.FacilityID,
		SlotNumber: in.SlotNumber,
		HolderID:   holder,
		CreatedAt:  now,
		ExpiresAt:  now.Add(in.TTL),
	}
	m.mu.Lock()
	m.holds[h.ID] = h
	m.mu.Unlock()
	e.holdID = h.ID
	m.registry.transitionLocked(in.FacilityID, e, models.SlotReserved, models.CauseHold)

	m.metrics.HoldCreated()
	m.logger.Info("hold granted",
		zap.String("hold", h.ID),
		zap.String("facility", h.FacilityID),
		zap.Int("slot", h.SlotNumber),
		zap.String("holder", h.HolderID),
		zap.Time("expiresAt", h.ExpiresAt),
	)
	return h, nil
}

// ExtendHold pushes a live hold's expiry out by extra. The remaining lifetime
// after the extension may not exceed the max TTL.
func (m *HoldManager) ExtendHold(ctx context.Context, holdID string, extra time.Duration) (models.Hold, error) {
	if err := ctx.Err(); err != nil {
		return models.Hold{}, err
	}
	if extra <= 0 {
		return models.Hold{}, fmt.Errorf("extension %s must be positive: %w", extra, ErrInvalidArgument)
	}
	e, h, err := m.lockHold(holdID)
	if err != nil {
		return models.Hold{}, err
	}
	defer e.mu.Unlock()

	now := m.clock.Now()
	if h.Expired(now) {
		m.endLocked(e, h, models.SlotFree, models.CauseExpiry, models.HoldExpired)
		return models.Hold{}, fmt.Errorf("hold %q expired at %s: %w", holdID, h.ExpiresAt, ErrNotFound)
	}
	next := h.ExpiresAt.Add(extra)
	if next.Sub(now) > m.maxTTL {
		return models.Hold{}, fmt.Errorf("extended hold would run %s, over %s: %w",
			next.Sub(now), m.maxTTL, ErrInvalidArgument)
	}
	h.ExpiresAt = next

	m.mu.Lock()
	m.holds[h.ID] = h
	m.mu.Unlock()
	m.logger.Info("hold extended", zap.String("hold", h.ID), zap.Time("expiresAt", h.ExpiresAt))
	return h, nil
}

// ReleaseHold frees the held slot. Releasing an unknown or already ended hold is
// a no-op.
func (m *HoldManager) ReleaseHold(ctx context.Context, holdID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(holdID) == "" {
		return fmt.Errorf("hold id required: %w", ErrInvalidArgument)
	}
	e, h, err := m.lockHold(holdID)
	if err != nil {
		return nil
	}
	defer e.mu.Unlock()

	if h.Expired(m.clock.Now()) {
		m.endLocked(e, h, models.SlotFree, models.CauseExpiry, models.HoldExpired)
		return nil
	}
	m.endLocked(e, h, models.SlotFree, models.CauseRelease, models.HoldReleased)
	return nil
}

// ConfirmArrival turns the hold into occupancy without passing through Free.
func (m *HoldManager) ConfirmArrival(ctx context.Context, holdID string) (models.ChangeEvent, error) {
	if err := ctx.Err(); err != nil {
		return models.ChangeEvent{}, err
	}
	e, h, err := m.lockHold(holdID)
	if err != nil {
		return models.ChangeEvent{}, err
	}
	defer e.mu.Unlock()

	if h.Expired(m.clock.Now()) {
		m.endLocked(e, h, models.SlotFree, models.CauseExpiry, models.HoldExpired)
		return models.ChangeEvent{}, fmt.Errorf("hold %q expired at %s: %w", holdID, h.ExpiresAt, ErrNotFound)
	}
	return m.endLocked(e, h, models.SlotOccupied, models.CauseArrival, models.HoldArrived), nil
}

// ExpireHolds releases every hold whose ExpiresAt is at or before now and
// returns the holds it ended.
func (m *HoldManager) ExpireHolds(ctx context.Context, now time.Time) []models.Hold {
	m.mu.Lock()
	candidates := make([]string, 0)
	for id, h := range m.holds {
		if h.Expired(now) {
			candidates = append(candidates, id)
		}
	}
	m.mu.Unlock()

	var expired []models.Hold
	for _, id := range candidates {
		if ctx.Err() != nil {
			break
		}
		e, h, err := m.lockHold(id)
		if err != nil {
			continue
		}
		if h.Expired(now) {
			m.endLocked(e, h, models.SlotFree, models.CauseExpiry, models.HoldExpired)
			expired = append(expired, h)
		}
		e.mu.Unlock()
	}
	return expired
}

// Run sweeps expired holds every interval until ctx is done.
func (m *HoldManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ended := m.ExpireHolds(ctx, m.clock.Now()); len(ended) > 0 {
				m.logger.Info("expired holds swept", zap.Int("count", len(ended)))
			}
		}
	}
}

// Hold returns a live hold. A hold past its expiry reads as ErrNotFound even
// before the sweeper has released it.
func (m *HoldManager) Hold(holdID string) (models.Hold, error) {
	h, ok := m.lookup(holdID)
	if !ok || h.Expired(m.clock.Now()) {
		return models.Hold{}, fmt.Errorf("hold %q: %w", holdID, ErrNotFound)
	}
	return h, nil
}

// HoldsByHolder lists a holder's active holds, soonest expiry first.
func (m *HoldManager) HoldsByHolder(holderID string) []models.Hold {
	return m.live(func(h models.Hold) bool { return h.HolderID == holderID })
}

func (m *HoldManager) ActiveHolds() []models.Hold {
	return m.live(func(models.Hold) bool { return true })
}

func (m *HoldManager) live(keep func(models.Hold) bool) []models.Hold {
	now := m.clock.Now()
	m.mu.Lock()
	out := make([]models.Hold, 0)
	for _, h := range m.holds {
		if !h.Expired(now) && keep(h) {
			out = append(out, h)
		}
	}
	m.mu.Unlock()
	sortHolds(out)
	return out
}

func (m *HoldManager) lookup(holdID string) (models.Hold, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	return h, ok
}

// lockHold locks the slot a hold sits on and re-checks the hold under that
// lock. The caller unlocks e.mu.
func (m *HoldManager) lockHold(holdID string) (*slotEntry, models.Hold, error) {
	h, ok := m.lookup(holdID)
	if !ok {
		return nil, models.Hold{}, fmt.Errorf("hold %q: %w", holdID, ErrNotFound)
	}
	e, err := m.registry.lockSlot(h.FacilityID, h.SlotNumber)
	if err != nil {
		return nil, models.Hold{}, err
	}
	h, ok = m.lookup(holdID)
	if !ok || e.holdID != holdID {
		e.mu.Unlock()
		return nil, models.Hold{}, fmt.Errorf("hold %q: %w", holdID, ErrNotFound)
	}
	return e, h, nil
}

// endLocked drops the hold and moves its slot to next. e.mu must be held.
func (m *HoldManager) endLocked(e *slotEntry, h models.Hold, next models.SlotState, cause models.ChangeCause, reason models.HoldEndReason) models.ChangeEvent {
	m.mu.Lock()
	delete(m.holds, h.ID)
	m.mu.Unlock()
	e.holdID = ""

	ev := m.registry.transitionLocked(h.FacilityID, e, next, cause)
	m.metrics.HoldEnded(string(reason))
	m.logger.Info("hold ended",
		zap.String("hold", h.ID),
		zap.String("facility", h.FacilityID),
		zap.Int("slot", h.SlotNumber),
		zap.String("reason", string(reason)),
	)
	return ev
}

// consumed is called by the registry, under the slot lock, when a sensor
// reports a car on a Reserved slot.
func (m *HoldManager) consumed(holdID string) {
	m.mu.Lock()
	h, ok := m.holds[holdID]
	delete(m.holds, holdID)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.metrics.HoldEnded(string(models.HoldArrived))
	m.logger.Info("hold consumed by arrival",
		zap.String("hold", h.ID),
		zap.String("facility", h.FacilityID),
		zap.Int("slot", h.SlotNumber),
	)
}

func sortHolds(hs []models.Hold) {
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].ExpiresAt.Equal(hs[j].ExpiresAt) {
			return hs[i].ID < hs[j].ID
		}
		return hs[i].ExpiresAt.Before(hs[j].ExpiresAt)
	})
}
