package analysis

// Observer receives a callback after every orchestrator step completes.
// External layers (SSE streaming, logging, metrics) subscribe through this
// interface instead of reaching into the engine.
type Observer interface {
	OnStep(jobID string, step Step, state *State)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(jobID string, step Step, state *State)

func (f ObserverFunc) OnStep(jobID string, step Step, state *State) {
	f(jobID, step, state)
}

func (e *Engine) notify(state *State, step Step) {
	for _, observer := range e.observers {
		observer.OnStep(state.JobID, step, state)
	}
}
