package tap

// Controller is the device-side TAP state machine. It is advanced once per
// model tick and moves only on a synchronized TCK rising edge. The previous
// state is kept so callers can detect the tick on which a state is entered.
type Controller struct {
	cur  State
	prev State
}

// NewController returns a controller parked in Test-Logic-Reset.
func NewController() *Controller {
	return &Controller{cur: StateTestLogicReset, prev: StateTestLogicReset}
}

// State returns the current state.
func (c *Controller) State() State { return c.cur }

// Previous returns the state held during the preceding tick.
func (c *Controller) Previous() State { return c.prev }

// Entered reports whether the controller moved into s on the last Step.
func (c *Controller) Entered(s State) bool {
	return c.cur == s && c.prev != s
}

// Step evaluates one tick. A synchronized reset wins over the transition
// table and is honoured whether or not an edge was detected.
func (c *Controller) Step(rst, tckRise, tms bool) {
	c.prev = c.cur
	switch {
	case rst:
		c.cur = StateTestLogicReset
	case tckRise:
		c.cur = NextState(c.cur, tms)
	}
}

// Reset parks the controller in Test-Logic-Reset with no pending entry edge.
func (c *Controller) Reset() {
	c.cur = StateTestLogicReset
	c.prev = StateTestLogicReset
}
