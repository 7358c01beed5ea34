package models

import (
	"fmt"
	"time"
)

// CycleState is the lifecycle state of a Cycle.
type CycleState string

const (
	// StateInitial is the state a cycle starts in, with only its opening order.
	StateInitial CycleState = "initial"
	// StateActive is the normal grid/zone management state.
	StateActive CycleState = "active"
	// StateRecovery is entered after a configured per-order loss threshold is hit
	// (AdaptiveHedge, AdvancedCyclesTrader families only).
	StateRecovery CycleState = "recovery"
	// StateClosed is terminal: every order is closed or reconciled closed.
	StateClosed CycleState = "closed"
)

// CycleStateTransition is one edge of the cycle lifecycle state machine.
type CycleStateTransition struct {
	From        CycleState
	To          CycleState
	Condition   string
	Description string
}

// ValidCycleTransitions enumerates every legal edge: a small fixed set of
// states, a handful of named conditions, recovery modeled as a bounded
// excursion rather than a terminal state.
var ValidCycleTransitions = []CycleStateTransition{
	{StateInitial, StateActive, "first_follow_on_order", "First grid/hedge/reversal order placed after the initial order"},

	{StateActive, StateRecovery, "recovery_entered", "Per-order loss threshold hit, pinning a recovery zone"},
	{StateRecovery, StateActive, "recovery_exited", "Recovery zone closed out, resuming normal zone tracking"},

	{StateInitial, StateClosed, "close_all", "Manual close before any follow-on order"},
	{StateActive, StateClosed, "close_all", "Manual close via close_cycle/close_all_cycles"},
	{StateRecovery, StateClosed, "close_all", "Manual close while in recovery"},

	{StateInitial, StateClosed, "take_profit", "Take-profit reached before any follow-on order"},
	{StateActive, StateClosed, "take_profit", "Take-profit reached"},
	{StateRecovery, StateClosed, "take_profit", "Take-profit reached while in recovery"},

	{StateActive, StateClosed, "batch_stop_loss", "Batch stop-loss closed every order in the batch"},
	{StateRecovery, StateClosed, "batch_stop_loss", "Batch stop-loss closed every order in the batch while in recovery"},

	{StateActive, StateClosed, "all_orders_reconciled_closed", "Every order in the cycle reconciled closed"},
	{StateRecovery, StateClosed, "all_orders_reconciled_closed", "Every order in the cycle reconciled closed while in recovery"},
}

var cycleTransitionLookup map[CycleState]map[CycleState]map[string]bool

func init() {
	cycleTransitionLookup = make(map[CycleState]map[CycleState]map[string]bool)
	for _, t := range ValidCycleTransitions {
		if cycleTransitionLookup[t.From] == nil {
			cycleTransitionLookup[t.From] = make(map[CycleState]map[string]bool)
		}
		if cycleTransitionLookup[t.From][t.To] == nil {
			cycleTransitionLookup[t.From][t.To] = make(map[string]bool)
		}
		cycleTransitionLookup[t.From][t.To][t.Condition] = true
	}
}

// CycleStateMachine manages cycle lifecycle transitions.
type CycleStateMachine struct {
	transitionTime   time.Time
	transitionCount  map[CycleState]int
	currentState     CycleState
	previousState    CycleState
	maxRecoveryCount int
	recoveryCount    int
}

// NewCycleStateMachine creates a machine starting in StateInitial.
func NewCycleStateMachine() *CycleStateMachine {
	return NewCycleStateMachineWithLimit(1)
}

// NewCycleStateMachineFromState creates a machine initialized to an existing state,
// used when rehydrating a cycle from the Local Store.
func NewCycleStateMachineFromState(state CycleState) *CycleStateMachine {
	sm := NewCycleStateMachine()
	sm.currentState = state
	sm.previousState = state
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[state] = 1
	return sm
}

// NewCycleStateMachineWithLimit creates a machine with a configurable max recovery re-entry count.
func NewCycleStateMachineWithLimit(maxRecoveryCount int) *CycleStateMachine {
	return &CycleStateMachine{
		currentState:     StateInitial,
		previousState:    StateInitial,
		transitionTime:   time.Now().UTC(),
		transitionCount:  make(map[CycleState]int),
		maxRecoveryCount: maxRecoveryCount,
	}
}

// GetCurrentState returns the current state.
func (sm *CycleStateMachine) GetCurrentState() CycleState { return sm.currentState }

// GetPreviousState returns the previous state.
func (sm *CycleStateMachine) GetPreviousState() CycleState { return sm.previousState }

// IsValidTransition reports whether a transition is legal.
func (sm *CycleStateMachine) IsValidTransition(to CycleState, condition string) error {
	if !sm.isTransitionDefined(to, condition) {
		return fmt.Errorf("invalid cycle transition from %s to %s with condition %q", sm.currentState, to, condition)
	}
	return sm.validateTransitionLimits(to)
}

func (sm *CycleStateMachine) isTransitionDefined(to CycleState, condition string) bool {
	if fromMap, ok := cycleTransitionLookup[sm.currentState]; ok {
		if toMap, ok := fromMap[to]; ok {
			_, ok := toMap[condition]
			return ok
		}
	}
	return false
}

func (sm *CycleStateMachine) validateTransitionLimits(to CycleState) error {
	if to == StateRecovery && sm.recoveryCount >= sm.maxRecoveryCount {
		return fmt.Errorf("maximum recovery re-entries (%d) exceeded", sm.maxRecoveryCount)
	}
	return nil
}

// Transition moves to a new state, recording the condition.
func (sm *CycleStateMachine) Transition(to CycleState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	if to == StateRecovery {
		sm.recoveryCount++
	}
	return nil
}

// CanEnterRecovery reports whether another recovery excursion is allowed.
func (sm *CycleStateMachine) CanEnterRecovery() bool {
	return sm.recoveryCount < sm.maxRecoveryCount
}

// RecoveryCount returns how many times recovery has been entered.
func (sm *CycleStateMachine) RecoveryCount() int { return sm.recoveryCount }

// IsClosed reports whether the cycle has reached its terminal state.
func (sm *CycleStateMachine) IsClosed() bool { return sm.currentState == StateClosed }

// TransitionTime returns the time of the last transition.
func (sm *CycleStateMachine) TransitionTime() time.Time { return sm.transitionTime }

// Copy creates a deep copy of the state machine.
func (sm *CycleStateMachine) Copy() *CycleStateMachine {
	if sm == nil {
		return nil
	}
	cp := &CycleStateMachine{
		currentState:     sm.currentState,
		previousState:    sm.previousState,
		transitionTime:   sm.transitionTime,
		maxRecoveryCount: sm.maxRecoveryCount,
		recoveryCount:    sm.recoveryCount,
	}
	cp.transitionCount = make(map[CycleState]int, len(sm.transitionCount))
	for k, v := range sm.transitionCount {
		cp.transitionCount[k] = v
	}
	return cp
}
