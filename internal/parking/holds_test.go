package parking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parknet-api-server/internal/models"
)

func TestHoldManager_RequestHold(t *testing.T) {
	t.Parallel()

	t.Run("reserves a free slot", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.bus.Subscribe("maharagama")
		defer sub.Close()

		h, err := f.holds.RequestHold(context.Background(), RequestHoldInput{
			FacilityID: "maharagama",
			SlotNumber: 2,
			HolderID:   "user-1",
			TTL:        10 * time.Minute,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if h.ID == "" {
			t.Fatalf("expected hold ID to be set")
		}
		if !h.CreatedAt.Equal(testNow) || !h.ExpiresAt.Equal(testNow.Add(10*time.Minute)) {
			t.Fatalf("unexpected times %v / %v", h.CreatedAt, h.ExpiresAt)
		}
		if got := f.state(t, 2); got != models.SlotReserved {
			t.Fatalf("expected reserved, got %s", got)
		}
		ev := <-sub.Events()
		if ev.Cause != models.CauseHold || ev.NewState != models.SlotReserved {
			t.Fatalf("unexpected event %+v", ev)
		}
	})

	tests := []struct {
		name    string
		in      RequestHoldInput
		wantErr error
	}{
		{"zero slot", RequestHoldInput{FacilityID: "maharagama", SlotNumber: 0, HolderID: "u", TTL: time.Minute}, ErrInvalidArgument},
		{"empty holder", RequestHoldInput{FacilityID: "maharagama", SlotNumber: 1, HolderID: " ", TTL: time.Minute}, ErrInvalidArgument},
		{"zero ttl", RequestHoldInput{FacilityID: "maharagama", SlotNumber: 1, HolderID: "u"}, ErrInvalidArgument},
		{"ttl over max", RequestHoldInput{FacilityID: "maharagama", SlotNumber: 1, HolderID: "u", TTL: 3 * time.Hour}, ErrInvalidArgument},
		{"unknown slot", RequestHoldInput{FacilityID: "maharagama", SlotNumber: 42, HolderID: "u", TTL: time.Minute}, ErrNotFound},
		{"unknown facility", RequestHoldInput{FacilityID: "kandy", SlotNumber: 1, HolderID: "u", TTL: time.Minute}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			_, err := f.holds.RequestHold(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("occupied slot is unavailable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		if _, err := f.registry.SetOccupancy(ctx, "maharagama", 1, true); err != nil {
			t.Fatalf("set: %v", err)
		}
		_, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 1, HolderID: "u", TTL: time.Minute})
		if !errors.Is(err, ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}
	})

	t.Run("expired hold is released lazily", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		first, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 3, HolderID: "a", TTL: time.Minute})
		if err != nil {
			t.Fatalf("hold: %v", err)
		}
		f.clock.Advance(time.Minute)

		second, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 3, HolderID: "b", TTL: time.Minute})
		if err != nil {
			t.Fatalf("expected expired hold to be replaced, got %v", err)
		}
		if second.HolderID != "b" {
			t.Fatalf("unexpected holder %s", second.HolderID)
		}
		if _, err := f.holds.Hold(first.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected first hold gone, got %v", err)
		}
	})
}

func TestHoldManager_ConcurrentRequestsOneWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	const n = 32

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins        int
		unavailable int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.holds.RequestHold(context.Background(), RequestHoldInput{
				FacilityID: "maharagama",
				SlotNumber: 1,
				HolderID:   "user",
				TTL:        time.Minute,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins != 1 || unavailable != n-1 {
		t.Fatalf("expected 1 winner and %d unavailable, got %d and %d", n-1, wins, unavailable)
	}
	if got := len(f.holds.ActiveHolds()); got != 1 {
		t.Fatalf("expected 1 active hold, got %d", got)
	}
}

func TestHoldManager_ExtendHold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	request := func(t *testing.T, f *fixture, ttl time.Duration) models.Hold {
		t.Helper()
		h, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 1, HolderID: "u", TTL: ttl})
		if err != nil {
			t.Fatalf("hold: %v", err)
		}
		return h
	}

	t.Run("pushes expiry out", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		h := request(t, f, 10*time.Minute)
		got, err := f.holds.ExtendHold(ctx, h.ID, 5*time.Minute)
		if err != nil {
			t.Fatalf("extend: %v", err)
		}
		if !got.ExpiresAt.Equal(testNow.Add(15 * time.Minute)) {
			t.Fatalf("unexpected expiry %v", got.ExpiresAt)
		}
		stored, _ := f.holds.Hold(h.ID)
		if !stored.ExpiresAt.Equal(got.ExpiresAt) {
			t.Fatalf("extension not stored")
		}
	})

	t.Run("rejects non-positive and over-max extensions", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		h := request(t, f, time.Hour)
		if _, err := f.holds.ExtendHold(ctx, h.ID, 0); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := f.holds.ExtendHold(ctx, h.ID, 90*time.Minute); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("expired hold is released and not found", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		h := request(t, f, time.Minute)
		f.clock.Advance(2 * time.Minute)
		if _, err := f.holds.ExtendHold(ctx, h.ID, time.Minute); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if got := f.state(t, 1); got != models.SlotFree {
			t.Fatalf("expected slot freed, got %s", got)
		}
	})

	t.Run("unknown hold", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		if _, err := f.holds.ExtendHold(ctx, "missing", time.Minute); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestHoldManager_ReleaseHoldIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	h, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 2, HolderID: "u", TTL: time.Minute})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	sub := f.bus.Subscribe("maharagama")
	defer sub.Close()

	for i := 0; i < 2; i++ {
		if err := f.holds.ReleaseHold(ctx, h.ID); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	if got := f.state(t, 2); got != models.SlotFree {
		t.Fatalf("expected free, got %s", got)
	}
	if n := len(sub.Events()); n != 1 {
		t.Fatalf("expected exactly one release event, got %d", n)
	}
	ev := <-sub.Events()
	if ev.Cause != models.CauseRelease {
		t.Fatalf("expected release cause, got %s", ev.Cause)
	}
	if err := f.holds.ReleaseHold(ctx, "never-existed"); err != nil {
		t.Fatalf("expected unknown release to be a no-op, got %v", err)
	}
	if err := f.holds.ReleaseHold(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestHoldManager_ConfirmArrival(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	h, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 5, HolderID: "u", TTL: time.Minute})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	sub := f.bus.Subscribe("maharagama")
	defer sub.Close()

	ev, err := f.holds.ConfirmArrival(ctx, h.ID)
	if err != nil {
		t.Fatalf("arrive: %v", err)
	}
	if ev.PreviousState != models.SlotReserved || ev.NewState != models.SlotOccupied || ev.Cause != models.CauseArrival {
		t.Fatalf("unexpected event %+v", ev)
	}
	if n := len(sub.Events()); n != 1 {
		t.Fatalf("expected a single transition without passing through free, got %d events", n)
	}
	if _, err := f.holds.ConfirmArrival(ctx, h.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second arrival, got %v", err)
	}
}

func TestHoldManager_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	ttl := 15 * time.Minute
	h, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 4, HolderID: "u", TTL: ttl})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	if ended := f.holds.ExpireHolds(ctx, h.CreatedAt.Add(ttl-time.Nanosecond)); len(ended) != 0 {
		t.Fatalf("expected no expiry before createdAt+T, got %d", len(ended))
	}
	if got := f.state(t, 4); got != models.SlotReserved {
		t.Fatalf("expected reserved, got %s", got)
	}

	sub := f.bus.Subscribe("maharagama")
	defer sub.Close()
	ended := f.holds.ExpireHolds(ctx, h.CreatedAt.Add(ttl))
	if len(ended) != 1 || ended[0].ID != h.ID {
		t.Fatalf("expected hold to expire exactly at createdAt+T, got %+v", ended)
	}
	if got := f.state(t, 4); got != models.SlotFree {
		t.Fatalf("expected free, got %s", got)
	}
	ev := <-sub.Events()
	if ev.Cause != models.CauseExpiry {
		t.Fatalf("expected expiry cause, got %s", ev.Cause)
	}
}

func TestHoldManager_RunSweeps(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 1, HolderID: "u", TTL: time.Minute}); err != nil {
		t.Fatalf("hold: %v", err)
	}
	f.clock.Advance(time.Minute)

	done := make(chan struct{})
	go func() {
		f.holds.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if f.state(t, 1) == models.SlotFree {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sweeper did not expire hold")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestHoldManager_ReadsHideExpiredHolds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	short, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 1, HolderID: "alice", TTL: time.Minute})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	long, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 2, HolderID: "alice", TTL: 10 * time.Minute})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	f.clock.Advance(2 * time.Minute)

	if _, err := f.holds.Hold(short.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired hold to read as not found, got %v", err)
	}
	if _, err := f.holds.Hold(long.ID); err != nil {
		t.Fatalf("expected live hold, got %v", err)
	}
	if mine := f.holds.HoldsByHolder("alice"); len(mine) != 1 || mine[0].ID != long.ID {
		t.Fatalf("expected only the live hold, got %+v", mine)
	}
	if all := f.holds.ActiveHolds(); len(all) != 1 || all[0].ID != long.ID {
		t.Fatalf("expected only the live hold, got %+v", all)
	}

	// Reads do not release; the slot stays reserved until a write or the sweeper ends it.
	if got := f.state(t, 1); got != models.SlotReserved {
		t.Fatalf("expected slot 1 still reserved, got %s", got)
	}
	if ended := f.holds.ExpireHolds(ctx, f.clock.Now()); len(ended) != 1 || ended[0].ID != short.ID {
		t.Fatalf("expected sweeper to end the expired hold, got %+v", ended)
	}
}

func TestHoldManager_HoldsByHolder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for slot, holder := range map[int]string{1: "alice", 2: "bob", 3: "alice"} {
		ttl := time.Duration(slot) * time.Minute
		if _, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: slot, HolderID: holder, TTL: ttl}); err != nil {
			t.Fatalf("hold: %v", err)
		}
	}
	mine := f.holds.HoldsByHolder("alice")
	if len(mine) != 2 {
		t.Fatalf("expected 2 holds, got %d", len(mine))
	}
	if mine[0].SlotNumber != 1 || mine[1].SlotNumber != 3 {
		t.Fatalf("expected soonest expiry first, got %+v", mine)
	}
	if got := f.holds.HoldsByHolder("carol"); len(got) != 0 {
		t.Fatalf("expected none, got %d", len(got))
	}
}

// The two flows every ParkNet deployment is checked against.
func TestMaharagamaScenarios(t *testing.T) {
	t.Parallel()

	t.Run("sensor occupancy drives the view", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		for _, n := range []int{1, 3} {
			if _, err := f.registry.SetOccupancy(ctx, "maharagama", n, true); err != nil {
				t.Fatalf("set: %v", err)
			}
		}
		v, err := Render(f.registry, "maharagama")
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		want := models.StateCounts{Free: 3, Reserved: 0, Occupied: 2, Total: 5}
		if v.Counts != want {
			t.Fatalf("expected %+v, got %+v", want, v.Counts)
		}
		if v.OccupancyRate != 0.4 || v.AvailabilityRate != 0.6 {
			t.Fatalf("unexpected rates %v / %v", v.OccupancyRate, v.AvailabilityRate)
		}
	})

	t.Run("hold conflict then release", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		sub := f.bus.Subscribe("maharagama")
		defer sub.Close()

		h, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 3, HolderID: "user-1", TTL: 600 * time.Second})
		if err != nil {
			t.Fatalf("hold: %v", err)
		}
		if _, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 3, HolderID: "user-2", TTL: 600 * time.Second}); !errors.Is(err, ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}
		if err := f.holds.ReleaseHold(ctx, h.ID); err != nil {
			t.Fatalf("release: %v", err)
		}

		reserved := <-sub.Events()
		if reserved.SlotNumber != 3 || reserved.PreviousState != models.SlotFree || reserved.NewState != models.SlotReserved {
			t.Fatalf("expected free->reserved on slot 3, got %+v", reserved)
		}
		freed := <-sub.Events()
		if freed.SlotNumber != 3 || freed.PreviousState != models.SlotReserved || freed.NewState != models.SlotFree {
			t.Fatalf("expected reserved->free on slot 3, got %+v", freed)
		}
		if freed.Sequence <= reserved.Sequence {
			t.Fatalf("expected release sequence %d to follow hold sequence %d", freed.Sequence, reserved.Sequence)
		}
		if n := len(sub.Events()); n != 0 {
			t.Fatalf("expected no event for the rejected request, got %d queued", n)
		}
	})

	t.Run("hold then arrive then leave", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		h, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 2, HolderID: "driver", TTL: 15 * time.Minute})
		if err != nil {
			t.Fatalf("hold: %v", err)
		}
		if _, err := f.holds.RequestHold(ctx, RequestHoldInput{FacilityID: "maharagama", SlotNumber: 2, HolderID: "other", TTL: time.Minute}); !errors.Is(err, ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}
		f.clock.Advance(5 * time.Minute)
		if _, err := f.holds.ConfirmArrival(ctx, h.ID); err != nil {
			t.Fatalf("arrive: %v", err)
		}
		if _, err := f.registry.SetOccupancy(ctx, "maharagama", 2, false); err != nil {
			t.Fatalf("leave: %v", err)
		}
		fac, _ := f.registry.Facility("maharagama")
		if s := fac.Slots[1]; s.State != models.SlotFree || s.Sequence != 3 {
			t.Fatalf("expected free at sequence 3, got %+v", s)
		}
	})
}
