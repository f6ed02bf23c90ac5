// Package outcome describes the result of best-effort side effects that never fail a request.
package outcome

import "go.uber.org/zap"

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is succeeded, skipped with a reason, or failed with an error.
type Outcome struct {
	Status Status
	Reason string
	Err    error
}

func Succeeded() Outcome {
	return Outcome{Status: StatusSucceeded}
}

func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Log records the outcome: failures at warn, everything else at debug.
func (o Outcome) Log(logger *zap.Logger, message string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	attrs := append([]zap.Field{zap.String("outcome", string(o.Status))}, fields...)
	switch o.Status {
	case StatusFailed:
		if o.Err != nil {
			attrs = append(attrs, zap.Error(o.Err))
		}
		logger.Warn(message, attrs...)
	case StatusSkipped:
		attrs = append(attrs, zap.String("reason", o.Reason))
		logger.Debug(message, attrs...)
	default:
		logger.Debug(message, attrs...)
	}
}
