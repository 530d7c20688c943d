// Package selection tracks which designs of the active catalog are chosen and
// publishes comparisons when two are.
//
// A Controller is not safe for concurrent use. Callers serialize access so that
// events are applied in arrival order; the order is observable through the
// FIFO eviction of comparison slots.
package selection

import (
	"paretodesk/internal/design"
)

// MaxSelected is the number of comparison slots.
const MaxSelected = 2

// Mode is the interaction mode.
type Mode string

const (
	Single     Mode = "single"
	Comparison Mode = "comparison"
)

// State is the current selection. Selected is oldest first: index 0 is slot
// A, index 1 is slot B.
type State struct {
	Mode     Mode  `json:"mode"`
	Selected []int `json:"selected"`
}

// Kind names a notification.
type Kind string

const (
	StateChanged     Kind = "state"
	ComparisonReady  Kind = "comparison"
	PartialSelection Kind = "partial_selection"
	NoSelection      Kind = "no_selection"
)

// Event is published to the rendering surface.
type Event struct {
	Kind       Kind                     `json:"kind"`
	State      State                    `json:"state"`
	Design     *design.Design           `json:"design,omitempty"`
	Comparison *design.ComparisonResult `json:"comparison,omitempty"`
}

// Notifier receives events synchronously, in the order they occur.
type Notifier func(Event)

// Activation is a point-activation event from the rendering surface.
type Activation struct {
	DesignID         int  `json:"design_id"`
	CompareRequested bool `json:"compare_requested"`
}

// Controller owns the active catalog and the selection state.
type Controller struct {
	catalog *design.Catalog
	state   State
	last    *design.ComparisonResult
	notify  Notifier
}

// NewController returns a controller with no catalog. A nil notifier drops
// events.
func NewController(notify Notifier) *Controller {
	if notify == nil {
		notify = func(Event) {}
	}
	return &Controller{
		state:  State{Mode: Single, Selected: []int{}},
		notify: notify,
	}
}

// Catalog returns the active catalog, or nil before the first Reset.
func (c *Controller) Catalog() *design.Catalog {
	return c.catalog
}

// State returns a copy of the selection state.
func (c *Controller) State() State {
	return State{Mode: c.state.Mode, Selected: append([]int{}, c.state.Selected...)}
}

// LastComparison returns the comparison currently on display, if any.
func (c *Controller) LastComparison() *design.ComparisonResult {
	if c.last == nil {
		return nil
	}
	cp := *c.last
	return &cp
}

// Reset installs a new catalog and clears the selection in one step, so no
// selected id can outlive the catalog it came from.
func (c *Controller) Reset(catalog *design.Catalog) {
	c.catalog = catalog
	c.state = State{Mode: Single, Selected: []int{}}
	c.last = nil
	c.publish(Event{Kind: StateChanged})
}

// SelectSingle makes id the only selection and leaves comparison mode.
// Ids outside the active catalog are ignored; the return value reports
// whether the state changed.
func (c *Controller) SelectSingle(id int) bool {
	d, ok := c.catalog.Lookup(id)
	if !ok {
		return false
	}
	hadComparison := c.last != nil
	c.state = State{Mode: Single, Selected: []int{id}}
	c.last = nil
	c.publish(Event{Kind: StateChanged, Design: &d})
	if hadComparison {
		c.publish(Event{Kind: NoSelection})
	}
	return true
}

// ToggleComparisonMode flips the mode. Leaving comparison mode clears the
// selection; entering it keeps whatever is selected, and a kept design is
// announced as slot A.
func (c *Controller) ToggleComparisonMode() Mode {
	if c.state.Mode == Comparison {
		c.state = State{Mode: Single, Selected: []int{}}
		c.last = nil
		c.publish(Event{Kind: StateChanged})
		c.publish(Event{Kind: NoSelection})
		return Single
	}
	c.state.Mode = Comparison
	c.publish(Event{Kind: StateChanged})
	if len(c.state.Selected) == 1 {
		d, _ := c.catalog.Lookup(c.state.Selected[0])
		c.publish(Event{Kind: PartialSelection, Design: &d})
	}
	return Comparison
}

// SelectForComparison toggles id in the comparison slots. Selecting a new id
// with both slots full evicts the oldest. Ids outside the active catalog are
// ignored.
func (c *Controller) SelectForComparison(id int) bool {
	if !c.catalog.Contains(id) {
		return false
	}
	c.state.Mode = Comparison

	selected := c.state.Selected
	if i := indexOf(selected, id); i >= 0 {
		selected = append(append([]int{}, selected[:i]...), selected[i+1:]...)
	} else if len(selected) < MaxSelected {
		selected = append(append([]int{}, selected...), id)
	} else {
		selected = append(append([]int{}, selected[1:]...), id)
	}
	c.state.Selected = selected

	c.publish(Event{Kind: StateChanged})
	switch len(selected) {
	case 2:
		a, _ := c.catalog.Lookup(selected[0])
		b, _ := c.catalog.Lookup(selected[1])
		result := design.Compare(a, b, c.catalog.YieldStrength)
		c.last = &result
		c.publish(Event{Kind: ComparisonReady, Comparison: &result})
	case 1:
		c.last = nil
		d, _ := c.catalog.Lookup(selected[0])
		c.publish(Event{Kind: PartialSelection, Design: &d})
	default:
		c.last = nil
		c.publish(Event{Kind: NoSelection})
	}
	return true
}

// Activate routes a point activation. Compare intent, or an active
// comparison mode, selects for comparison; anything else selects singly.
func (c *Controller) Activate(a Activation) bool {
	if a.CompareRequested || c.state.Mode == Comparison {
		return c.SelectForComparison(a.DesignID)
	}
	return c.SelectSingle(a.DesignID)
}

// Primary returns the most recently selected design.
func (c *Controller) Primary() (design.Design, bool) {
	n := len(c.state.Selected)
	if n == 0 {
		return design.Design{}, false
	}
	return c.catalog.Lookup(c.state.Selected[n-1])
}

func (c *Controller) publish(ev Event) {
	ev.State = c.State()
	c.notify(ev)
}

func indexOf(ids []int, id int) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
