package executor

// Executor is a background loop owned by the agent.
type Executor interface {
	Start() error
	Stop() error
	Name() string
}
