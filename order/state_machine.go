package order

import "fmt"

// StateTransition is one edge of the order lifecycle graph.
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine validates order status transitions. The table is built once
// and only read afterwards, so a machine may be shared between engines.
type StateMachine struct {
	transitions map[StateTransition]bool
}

// NewStateMachine builds the lifecycle graph.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

func (sm *StateMachine) initializeTransitions() {
	live := []Status{StatusResting, StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusExpired}
	legal := []StateTransition{
		{StatusNew, StatusPending},
		{StatusNew, StatusRejected},

		// held orders: stops, GAT, on-open/on-close, OSO children
		{StatusPending, StatusTriggered},
		{StatusPending, StatusRejected}, // released OSO child failing acceptance
	}
	for _, from := range []Status{StatusNew, StatusPending, StatusTriggered, StatusResting, StatusPartiallyFilled} {
		for _, to := range live {
			legal = append(legal, StateTransition{from, to})
		}
	}
	for _, t := range legal {
		sm.transitions[t] = true
	}
}

// ValidateTransition returns an error for an illegal status change.
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	if from == to && !from.Terminal() {
		return nil
	}
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

// CanCancel reports whether an order in status can still be cancelled.
func (sm *StateMachine) CanCancel(status Status) bool {
	return sm.transitions[StateTransition{From: status, To: StatusCancelled}]
}

// Transition moves o to status, panicking on an illegal edge. Engines only
// call it from code paths where an illegal edge is a defect.
func (sm *StateMachine) Transition(o *Order, to Status) {
	if err := sm.ValidateTransition(o.Status, to); err != nil {
		panic(fmt.Sprintf("order %d: %v", o.ID, err))
	}
	o.Status = to
}
