// Package milestone fires one-shot population milestones and grows the
// shared hand capacity.
//
// A milestone is a population threshold that, once crossed, triggers a
// delayed side effect at most once for the lifetime of the game. The flag
// recording a milestone means "scheduled", not "completed": it is claimed
// atomically before the delayed action is armed, so concurrent draw events
// observing the same crossing cannot double-fire the action.
package milestone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/arcana.cards/internal/kv"
)

const (
	flagPrefix  = "flag:"
	capacityKey = "max_hand_size"
)

// Milestone is one population threshold with its delayed side effect.
type Milestone struct {
	Threshold int
	Flag      string
	Delay     time.Duration
	Action    func(ctx context.Context)
}

// CapacityStep raises the shared hand capacity once population reaches
// Threshold.
type CapacityStep struct {
	Threshold int
	Capacity  int
}

// Scheduler arms delayed callbacks. The real implementation wraps
// time.AfterFunc; tests drive callbacks manually.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// TimerScheduler schedules callbacks on real timers.
type TimerScheduler struct{}

// AfterFunc arms fn to run after d.
func (TimerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// Tracker evaluates milestones and capacity growth against the population
// metric observed on each draw event.
type Tracker struct {
	store        *kv.Store
	scheduler    Scheduler
	milestones   []Milestone
	steps        []CapacityStep
	baseCapacity int

	// capacityMu makes the read-compare-write in raiseCapacity atomic, so a
	// stale observation racing a fresh one can never lower the cap.
	capacityMu sync.Mutex
}

// NewTracker creates a tracker. baseCapacity is the hand capacity before any
// step applies; it is also the floor Capacity never drops below.
func NewTracker(store *kv.Store, scheduler Scheduler, milestones []Milestone, steps []CapacityStep, baseCapacity int) *Tracker {
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	return &Tracker{
		store:        store,
		scheduler:    scheduler,
		milestones:   milestones,
		steps:        steps,
		baseCapacity: baseCapacity,
	}
}

// Observe evaluates every milestone and the capacity table against the
// current population. Crossed milestones whose flag is unclaimed are
// scheduled exactly once; capacity only ever rises.
func (t *Tracker) Observe(ctx context.Context, population int) error {
	if t == nil || t.store == nil {
		return nil
	}

	for _, m := range t.milestones {
		if m.Threshold > population {
			continue
		}
		claimed, err := t.store.SetIfAbsent(ctx, flagPrefix+m.Flag, true, kv.SetOptions{Persist: true})
		if err != nil {
			return fmt.Errorf("claim milestone %q: %w", m.Flag, err)
		}
		if !claimed {
			continue
		}
		if m.Action != nil {
			actionCtx := context.WithoutCancel(ctx)
			action := m.Action
			t.scheduler.AfterFunc(m.Delay, func() { action(actionCtx) })
		}
	}

	return t.raiseCapacity(ctx, population)
}

// Capacity returns the current shared hand capacity.
func (t *Tracker) Capacity(ctx context.Context) (int, error) {
	if t == nil || t.store == nil {
		return 0, nil
	}
	current := t.baseCapacity
	var stored int
	found, err := t.store.Get(ctx, capacityKey, &stored, true)
	if err != nil {
		return 0, fmt.Errorf("read capacity: %w", err)
	}
	if found && stored > current {
		current = stored
	}
	return current, nil
}

func (t *Tracker) raiseCapacity(ctx context.Context, population int) error {
	applicable := t.baseCapacity
	for _, step := range t.steps {
		if step.Threshold <= population && step.Capacity > applicable {
			applicable = step.Capacity
		}
	}

	t.capacityMu.Lock()
	defer t.capacityMu.Unlock()

	current, err := t.Capacity(ctx)
	if err != nil {
		return err
	}
	// Only a strictly greater value is written; a lagging population read
	// can never lower the cap.
	if applicable <= current {
		return nil
	}
	if err := t.store.Set(ctx, capacityKey, applicable, kv.SetOptions{Persist: true}); err != nil {
		return fmt.Errorf("write capacity: %w", err)
	}
	return nil
}
