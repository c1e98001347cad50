package transfer

import "fmt"

// Stages a round can fail in.
const (
	StageStart     = "start"
	StageOptimize  = "optimize"
	StageDeprocess = "deprocess"
	StageSave      = "save"
)

// RoundError reports which round and stage of a run failed. Checkpoints
// of earlier rounds are left untouched.
type RoundError struct {
	Round int
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d: %s: %v", e.Round, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *RoundError) Unwrap() error {
	return e.Err
}
