package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrToolRoundsExceeded is returned when the model keeps requesting tools past the configured bound.
	ErrToolRoundsExceeded = errors.New("tool rounds exceeded")
	// ErrEvaluationFailed is returned when no evaluator path produced a usable verdict.
	ErrEvaluationFailed = errors.New("evaluation failed")
)

// Stage names the step of a turn that failed.
type Stage string

const (
	StageGenerate   Stage = "generate"
	StageEvaluate   Stage = "evaluate"
	StageRegenerate Stage = "regenerate"
)

// TurnError reports which stage of a turn failed. No partial reply accompanies it.
type TurnError struct {
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed during %s: %v", e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}
