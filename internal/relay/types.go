package relay

// SlotRef identifies an occupied slot and the connection descriptor it held
// when the reference was taken.
type SlotRef struct {
	Index int
	FD    int
}

type loopState int

const (
	stateRunning loopState = iota
	stateShuttingDown
	stateTerminated
)

var (
	ErrCapacity = errorString("registry_full")
)

type errorString string

func (e errorString) Error() string { return string(e) }
