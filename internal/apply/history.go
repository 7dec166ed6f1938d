package apply

import (
	"sync"
	"time"

	"nutricopilot.com/mealplan-copilot/internal/store"
	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

const maxHistory = 100

// Record is what an applied change left behind, enough to reverse it.
// Reverting consumes the record step by step, so a revert that fails half
// way can be retried without repeating finished steps.
type Record struct {
	CreatedMealFoods []string
	CreatedMealID    string
	Removed          []store.MealFood
	Quantities       []QuantityChange
}

type QuantityChange struct {
	MealFoodID string
	Previous   float64
}

type Pair struct {
	Change suggestion.Change
	Result Result
}

// Entry is one undoable step: a single change, or the successful part of
// an apply-all. A redone entry keeps the ID it was first recorded under.
type Entry struct {
	ID      uint64
	Pairs   []Pair
	Grouped bool
	At      time.Time
}

// History keeps undo and redo stacks. It is safe for concurrent use.
type History struct {
	mu     sync.Mutex
	undo   []*Entry
	redo   []*Entry
	lastID uint64
}

func NewHistory() *History {
	return &History{}
}

// Push records a newly applied entry, assigns its ID and invalidates redo.
func (h *History) Push(e *Entry) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID++
	e.ID = h.lastID
	h.pushUndo(e)
	h.redo = nil
	return e.ID
}

func (h *History) pushUndo(e *Entry) {
	h.undo = append(h.undo, e)
	if len(h.undo) > maxHistory {
		h.undo = h.undo[len(h.undo)-maxHistory:]
	}
}

func (h *History) popUndo() (*Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undo) == 0 {
		return nil, false
	}
	e := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	return e, true
}

func (h *History) popRedo() (*Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.redo) == 0 {
		return nil, false
	}
	e := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	return e, true
}

// restoreUndo puts back an entry whose undo failed.
func (h *History) restoreUndo(e *Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushUndo(e)
}

func (h *History) pushRedo(e *Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redo = append(h.redo, e)
}

// pushRedone records a redone entry without clearing the rest of redo.
func (h *History) pushRedone(e *Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushUndo(e)
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Sizes returns the depth of the undo and redo stacks.
func (h *History) Sizes() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}
