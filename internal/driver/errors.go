package driver

import "fmt"

// Stage names one step of a run.
type Stage string

const (
	StageDecode      Stage = "decode"
	StageLayout      Stage = "layout"
	StageDevice      Stage = "device"
	StageMaterialize Stage = "materialize"
	StagePlan        Stage = "plan"
	StageCompile     Stage = "compile"
	StageBind        Stage = "bind"
	StageDispatch    Stage = "dispatch"
	StageReadback    Stage = "readback"
	StageValidate    Stage = "validate"
)

// StageError reports the stage a run failed in. The underlying error keeps
// its sentinel so callers can still match on the failure kind.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
