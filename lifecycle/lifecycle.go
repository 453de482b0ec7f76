// Package lifecycle tracks the node's coarse operating state (starting,
// syncing, ready, stopping) as a small finite state machine, driven by
// cmd/coreharness. Grounded on
// the teacher's service startup/shutdown sequencing (each teranode
// service reports a started/ready/stopping state to its health check);
// this module expresses the same idea as an explicit state machine
// instead of ad hoc booleans. Library: github.com/looplab/fsm.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

const (
	StateStarting = "starting"
	StateSyncing  = "syncing"
	StateReady    = "ready"
	StateStopping = "stopping"
	StateStopped  = "stopped"
)

const (
	EventSyncBegin = "sync_begin"
	EventSyncDone  = "sync_done"
	EventStop      = "stop"
	EventStopped   = "stopped"
)

// Lifecycle wraps a looplab/fsm.FSM with the node's specific states and
// transitions, so callers interact with named methods instead of raw
// event strings.
type Lifecycle struct {
	machine *fsm.FSM
}

// New constructs a Lifecycle starting in StateStarting.
func New() *Lifecycle {
	machine := fsm.NewFSM(
		StateStarting,
		fsm.Events{
			{Name: EventSyncBegin, Src: []string{StateStarting}, Dst: StateSyncing},
			{Name: EventSyncDone, Src: []string{StateSyncing}, Dst: StateReady},
			{Name: EventStop, Src: []string{StateStarting, StateSyncing, StateReady}, Dst: StateStopping},
			{Name: EventStopped, Src: []string{StateStopping}, Dst: StateStopped},
		},
		fsm.Callbacks{},
	)
	return &Lifecycle{machine: machine}
}

func (l *Lifecycle) Current() string { return l.machine.Current() }

func (l *Lifecycle) BeginSync(ctx context.Context) error {
	return wrap(l.machine.Event(ctx, EventSyncBegin))
}

func (l *Lifecycle) MarkReady(ctx context.Context) error {
	return wrap(l.machine.Event(ctx, EventSyncDone))
}

func (l *Lifecycle) BeginStop(ctx context.Context) error {
	return wrap(l.machine.Event(ctx, EventStop))
}

func (l *Lifecycle) MarkStopped(ctx context.Context) error {
	return wrap(l.machine.Event(ctx, EventStopped))
}

// IsReady reports whether the node is currently past initial sync.
func (l *Lifecycle) IsReady() bool {
	return l.machine.Is(StateReady)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(fsm.NoTransitionError); ok {
		return nil
	}
	return fmt.Errorf("lifecycle transition: %w", err)
}
