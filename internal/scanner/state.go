package scanner

import "fmt"

// State is the scan lifecycle position
type State int32

const (
	StateInit State = iota
	StateResuming
	StateScanning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateResuming:
		return "resuming"
	case StateScanning:
		return "scanning"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Checkpoint is the resume cursor and the running totals. It only moves
// forward: LastAddress is the most recent address committed to the result
// log, in draw order.
type Checkpoint struct {
	LastAddress uint32
	Processed   uint64
	Found       uint64
}

// Termination reasons reported in Report.Reason and the metrics file
const (
	ReasonExhausted  = "range_exhausted"
	ReasonMaxReached = "max_reached"
	ReasonCancelled  = "cancelled"
)
