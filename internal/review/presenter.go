package review

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nutricopilot.com/mealplan-copilot/internal/apply"
	"nutricopilot.com/mealplan-copilot/internal/logger"
	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

var (
	ErrUnknownUnit    = errors.New("unknown suggestion unit")
	ErrUnknownChange  = errors.New("unknown change index")
	ErrBusy           = errors.New("suggestion unit has an apply in progress")
	ErrClosed         = errors.New("suggestion unit is closed")
	ErrAlreadyApplied = errors.New("change already applied")
)

type State string

const (
	StatePending          State = "pending"
	StatePartiallyApplied State = "partially_applied"
	StateFullyApplied     State = "fully_applied"
	StateDismissed        State = "dismissed"
)

// Terminal units accept no further actions.
func (s State) Terminal() bool {
	return s == StateFullyApplied || s == StateDismissed
}

type Event string

const (
	EventRendered  Event = "rendered"
	EventApplied   Event = "applied"
	EventDismissed Event = "dismissed"
	EventUndone    Event = "undone"
	EventRedone    Event = "redone"
)

// Notice is relayed to the rendering layer after each unit event.
type Notice struct {
	Event   Event  `json:"event"`
	UnitID  string `json:"unit_id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Applier is the part of apply.Applier the presenter drives.
type Applier interface {
	ApplyChange(ctx context.Context, c suggestion.Change) apply.Result
	ApplyMultiple(ctx context.Context, changes []suggestion.Change) apply.BatchResult
	Undo(ctx context.Context) apply.Result
	Redo(ctx context.Context) apply.Result
}

// itemRef points at one item of one unit.
type itemRef struct {
	unitID string
	index  int
}

type Item struct {
	Index           int               `json:"index"`
	Kind            string            `json:"kind"`
	Description     string            `json:"description"`
	Confidence      float64           `json:"confidence"`
	ConfidenceLabel string            `json:"confidence_label"`
	Applied         bool              `json:"applied"`
	Change          suggestion.Change `json:"-"`
}

type unit struct {
	id        string
	parsed    suggestion.Parsed
	items     []Item
	state     State
	busy      bool
	createdAt time.Time
}

// View is a snapshot of a unit for rendering.
type View struct {
	ID                string    `json:"id"`
	State             State     `json:"state"`
	Items             []Item    `json:"items"`
	OverallConfidence float64   `json:"overall_confidence"`
	ShowApplyAll      bool      `json:"show_apply_all"`
	Busy              bool      `json:"busy"`
	CreatedAt         time.Time `json:"created_at"`
}

// Presenter tracks the suggestion units of one session. Its lock is never
// held while the applier runs; a unit's busy flag rejects overlapping
// applies on that unit, while different units may apply concurrently.
type Presenter struct {
	mu       sync.Mutex
	applier  Applier
	notifier Notifier
	units    map[string]*unit
	order    []string
	// entries maps an applier history entry to the items it applied, in
	// the entry's order.
	entries map[uint64][]itemRef
}

func NewPresenter(applier Applier, notifier Notifier) *Presenter {
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	return &Presenter{
		applier:  applier,
		notifier: notifier,
		units:    make(map[string]*unit),
		entries:  make(map[uint64][]itemRef),
	}
}

// Present wraps parsed as a new pending unit. Nothing is created when there
// are no changes.
func (p *Presenter) Present(parsed suggestion.Parsed) (View, bool) {
	if len(parsed.Changes) == 0 {
		return View{}, false
	}
	u := &unit{
		id:        uuid.NewString(),
		parsed:    parsed,
		items:     make([]Item, len(parsed.Changes)),
		state:     StatePending,
		createdAt: time.Now(),
	}
	for i, c := range parsed.Changes {
		confidence := c.Metadata().Confidence
		u.items[i] = Item{
			Index:           i,
			Kind:            suggestion.Kind(c),
			Description:     Describe(c),
			Confidence:      confidence,
			ConfidenceLabel: ConfidenceLabel(confidence),
			Change:          c,
		}
	}

	p.mu.Lock()
	p.units[u.id] = u
	p.order = append(p.order, u.id)
	view := u.view()
	p.mu.Unlock()

	p.notifier.Notify(Notice{
		Event:   EventRendered,
		UnitID:  u.id,
		Success: true,
		Message: fmt.Sprintf("%d suggested change(s)", len(u.items)),
	})
	return view, true
}

// acquire checks that the unit can take an action and marks it busy.
func (p *Presenter) acquire(unitID string) (*unit, error) {
	u, ok := p.units[unitID]
	if !ok {
		return nil, ErrUnknownUnit
	}
	if u.state.Terminal() {
		return nil, ErrClosed
	}
	if u.busy {
		return nil, ErrBusy
	}
	return u, nil
}

// Apply applies a single change of a unit.
func (p *Presenter) Apply(ctx context.Context, unitID string, index int) (apply.Result, View, error) {
	p.mu.Lock()
	u, err := p.acquire(unitID)
	if err != nil {
		p.mu.Unlock()
		return apply.Result{}, View{}, err
	}
	if index < 0 || index >= len(u.items) {
		p.mu.Unlock()
		return apply.Result{}, View{}, ErrUnknownChange
	}
	if u.items[index].Applied {
		p.mu.Unlock()
		return apply.Result{}, View{}, ErrAlreadyApplied
	}
	u.busy = true
	change := u.items[index].Change
	p.mu.Unlock()

	res := p.applier.ApplyChange(ctx, change)

	p.mu.Lock()
	u.busy = false
	if res.Success {
		u.items[index].Applied = true
		u.updateState()
		p.entries[res.EntryID] = []itemRef{{unitID: unitID, index: index}}
	}
	view := u.view()
	p.mu.Unlock()

	logger.Info("suggestion change applied",
		zap.String("unit_id", unitID), zap.Int("index", index), zap.Bool("success", res.Success))
	p.notifier.Notify(Notice{Event: EventApplied, UnitID: unitID, Success: res.Success, Message: res.Message})
	return res, view, nil
}

// ApplyAll applies every change of a unit that is not applied yet, in order.
func (p *Presenter) ApplyAll(ctx context.Context, unitID string) (apply.BatchResult, View, error) {
	p.mu.Lock()
	u, err := p.acquire(unitID)
	if err != nil {
		p.mu.Unlock()
		return apply.BatchResult{}, View{}, err
	}
	var pending []int
	var changes []suggestion.Change
	for i, item := range u.items {
		if !item.Applied {
			pending = append(pending, i)
			changes = append(changes, item.Change)
		}
	}
	u.busy = true
	p.mu.Unlock()

	batch := p.applier.ApplyMultiple(ctx, changes)

	p.mu.Lock()
	u.busy = false
	var refs []itemRef
	for i, res := range batch.Results {
		if res.Success && i < len(pending) {
			u.items[pending[i]].Applied = true
			refs = append(refs, itemRef{unitID: unitID, index: pending[i]})
		}
	}
	if len(refs) > 0 {
		p.entries[batch.EntryID] = refs
	}
	u.updateState()
	view := u.view()
	p.mu.Unlock()

	msg := fmt.Sprintf("Applied %d of %d changes", batch.SuccessCount, batch.TotalCount)
	for _, res := range batch.Results {
		if !res.Success {
			msg += "; " + res.Message
		}
	}
	logger.Info("suggestion unit applied",
		zap.String("unit_id", unitID), zap.Int("succeeded", batch.SuccessCount), zap.Int("total", batch.TotalCount))
	p.notifier.Notify(Notice{Event: EventApplied, UnitID: unitID, Success: batch.SuccessCount > 0, Message: msg})
	return batch, view, nil
}

// Dismiss closes a unit. Changes already applied stay applied.
func (p *Presenter) Dismiss(unitID string) (View, error) {
	p.mu.Lock()
	u, err := p.acquire(unitID)
	if err != nil {
		p.mu.Unlock()
		return View{}, err
	}
	u.state = StateDismissed
	view := u.view()
	p.mu.Unlock()

	p.notifier.Notify(Notice{Event: EventDismissed, UnitID: unitID, Success: true, Message: "Suggestion dismissed"})
	return view, nil
}

// Undo reverts the most recent applied entry and marks the items it had
// applied as pending again, reopening their units unless dismissed.
func (p *Presenter) Undo(ctx context.Context) apply.Result {
	res := p.applier.Undo(ctx)
	if !res.Success {
		return res
	}
	p.mu.Lock()
	touched := p.mark(p.entries[res.EntryID], false)
	p.mu.Unlock()

	for _, id := range touched {
		p.notifier.Notify(Notice{Event: EventUndone, UnitID: id, Success: true, Message: res.Message})
	}
	return res
}

// Redo re-applies the most recently undone entry and marks its items
// applied again. Items whose change could not be redone stay pending.
func (p *Presenter) Redo(ctx context.Context) apply.Result {
	res := p.applier.Redo(ctx)
	if !res.Success {
		return res
	}
	p.mu.Lock()
	refs := p.entries[res.EntryID]
	if len(res.Skipped) > 0 {
		kept := make([]itemRef, 0, len(refs))
		for i, ref := range refs {
			if !slices.Contains(res.Skipped, i) {
				kept = append(kept, ref)
			}
		}
		refs = kept
		p.entries[res.EntryID] = refs
	}
	touched := p.mark(refs, true)
	p.mu.Unlock()

	for _, id := range touched {
		p.notifier.Notify(Notice{Event: EventRedone, UnitID: id, Success: true, Message: res.Message})
	}
	return res
}

// mark sets the Applied flag of refs and returns the units touched, in
// order. The caller holds p.mu.
func (p *Presenter) mark(refs []itemRef, applied bool) []string {
	var touched []string
	for _, ref := range refs {
		u, ok := p.units[ref.unitID]
		if !ok || ref.index >= len(u.items) {
			continue
		}
		u.items[ref.index].Applied = applied
		if u.state != StateDismissed {
			u.updateState()
		}
		if !slices.Contains(touched, ref.unitID) {
			touched = append(touched, ref.unitID)
		}
	}
	return touched
}

func (p *Presenter) Unit(unitID string) (View, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.units[unitID]
	if !ok {
		return View{}, ErrUnknownUnit
	}
	return u.view(), nil
}

// Active lists the units that have not been dismissed, oldest first.
func (p *Presenter) Active() []View {
	p.mu.Lock()
	defer p.mu.Unlock()
	views := make([]View, 0, len(p.order))
	for _, id := range p.order {
		if u := p.units[id]; u.state != StateDismissed {
			views = append(views, u.view())
		}
	}
	return views
}

func (u *unit) updateState() {
	applied := 0
	for _, item := range u.items {
		if item.Applied {
			applied++
		}
	}
	switch {
	case applied == len(u.items):
		u.state = StateFullyApplied
	case applied > 0:
		u.state = StatePartiallyApplied
	default:
		u.state = StatePending
	}
}

func (u *unit) view() View {
	items := make([]Item, len(u.items))
	copy(items, u.items)
	pending := 0
	for _, item := range items {
		if !item.Applied {
			pending++
		}
	}
	return View{
		ID:                u.id,
		State:             u.state,
		Items:             items,
		OverallConfidence: u.parsed.OverallConfidence,
		ShowApplyAll:      !u.state.Terminal() && len(items) > 1 && pending > 0,
		Busy:              u.busy,
		CreatedAt:         u.createdAt,
	}
}
