package watch

// =============================================================================
// Rebuild Coordinator
// =============================================================================

// Phase is the coordinator's position in the rebuild cycle.
type Phase int

const (
	Idle Phase = iota
	Debouncing
	Building
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case Building:
		return "building"
	default:
		return "unknown"
	}
}

// Action tells the caller what to do after feeding the coordinator an input.
type Action int

const (
	// None means no side effect is needed.
	None Action = iota
	// StartTimer starts the debounce timer.
	StartTimer
	// StartBuild starts a rebuild.
	StartBuild
)

// Coordinator owns the rebuild state of a dev session. Events arriving while
// debouncing collapse into the pending rebuild; events arriving while building
// queue at most one follow-up rebuild.
type Coordinator struct {
	phase   Phase
	pending bool
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	return c.phase
}

// Pending reports whether a rebuild is queued behind the running one.
func (c *Coordinator) Pending() bool {
	return c.pending
}

// Changed records a relevant file change. Only the first change of a burst
// opens the debounce window; later ones fall into it without extending it.
func (c *Coordinator) Changed() Action {
	switch c.phase {
	case Building:
		c.pending = true
		return None
	case Debouncing:
		return None
	default:
		c.phase = Debouncing
		return StartTimer
	}
}

// TimerFired records the end of the debounce window.
func (c *Coordinator) TimerFired() Action {
	if c.phase != Debouncing {
		return None
	}
	c.phase = Building
	return StartBuild
}

// BuildStarted records a rebuild started outside the debounce cycle, such as
// the initial pass.
func (c *Coordinator) BuildStarted() {
	c.phase = Building
}

// BuildDone records the end of a rebuild. A queued change starts a new
// debounce window.
func (c *Coordinator) BuildDone() Action {
	if c.phase != Building {
		return None
	}
	if c.pending {
		c.pending = false
		c.phase = Debouncing
		return StartTimer
	}
	c.phase = Idle
	return None
}
