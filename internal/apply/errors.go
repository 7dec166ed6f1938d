package apply

import (
	"errors"
	"fmt"

	"nutricopilot.com/mealplan-copilot/internal/store"
)

var (
	// ErrNotFound means a meal or a food in a meal could not be resolved by name.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the change itself is unusable (empty name, bad quantity).
	ErrValidation = errors.New("invalid change")
	// ErrUpstream means the store or the catalog failed.
	ErrUpstream = errors.New("upstream failure")
)

// classify tags a collaborator error with the matching sentinel.
func classify(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// Result is the outcome of one change. Message is meant for users; Err
// carries the classified cause for logs and is never shown.
type Result struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Err     error   `json:"-"`
	Record  *Record `json:"-"`

	// EntryID names the history entry a successful apply, undo or redo
	// touched. Skipped lists the positions in that entry whose changes
	// could not be redone; they are no longer part of it.
	EntryID uint64 `json:"-"`
	Skipped []int  `json:"-"`
}

func failed(err error, format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...), Err: err}
}

// BatchResult reports an ApplyMultiple run.
type BatchResult struct {
	SuccessCount int      `json:"success_count"`
	TotalCount   int      `json:"total_count"`
	Results      []Result `json:"results"`
	EntryID      uint64   `json:"-"`
}
