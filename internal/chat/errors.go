package chat

import "errors"

// ErrTurnFailed matches every *TurnError.
var ErrTurnFailed = errors.New("chat turn failed")

// TurnError is returned to the user-facing layer when a turn cannot be
// completed. Its message never carries backend detail; the cause is kept for
// errors.Is/As and for logs.
type TurnError struct {
	Op  string
	Err error
}

func (e *TurnError) Error() string {
	return "sorry, something went wrong while handling your message; please try again"
}

func (e *TurnError) Unwrap() error { return e.Err }

func (e *TurnError) Is(target error) bool { return target == ErrTurnFailed }
