package controller

import (
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// Loop states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateStopped = "stopped"
)

const (
	eventStart statekit.EventType = "START"
	eventStop  statekit.EventType = "STOP"
)

// loopContext is carried through the statechart.
type loopContext struct {
	StopReason string
}

// loopMachine wraps the statekit interpreter. The interpreter is driven only
// by the loop goroutine; state() may be called from anywhere.
type loopMachine struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[*loopContext]
}

func newLoopMachine() (*loopMachine, error) {
	machine, err := statekit.NewMachine[*loopContext]("agent-loop").
		WithInitial(statekit.StateID(StateIdle)).
		WithContext(&loopContext{}).
		WithAction("clearStop", clearStop).
		WithAction("recordStop", recordStop).
		State(statekit.StateID(StateIdle)).
		On(eventStart).Target(statekit.StateID(StateRunning)).Do("clearStop").
		On(eventStop).Target(statekit.StateID(StateStopped)).Do("recordStop").
		Done().
		State(statekit.StateID(StateRunning)).
		On(eventStop).Target(statekit.StateID(StateStopped)).Do("recordStop").
		Done().
		State(statekit.StateID(StateStopped)).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, err
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &loopMachine{interp: interp}, nil
}

func clearStop(ctx **loopContext, _ statekit.Event) {
	(*ctx).StopReason = ""
}

func recordStop(ctx **loopContext, event statekit.Event) {
	if reason, ok := event.Payload.(string); ok {
		(*ctx).StopReason = reason
	}
}

func (m *loopMachine) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.interp.Matches(statekit.StateID(StateIdle)) {
		return
	}
	m.interp.Send(statekit.Event{Type: eventStart})
}

func (m *loopMachine) stop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interp.Done() {
		return
	}
	m.interp.Send(statekit.Event{Type: eventStop, Payload: reason})
}

func (m *loopMachine) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interp.Matches(statekit.StateID(StateRunning))
}

func (m *loopMachine) state() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.interp.State().Value)
}
