package permission

// Step is what the caller must do next.
type Step int

const (
	Proceed Step = iota
	Ask          // issue a Request
	Explain      // show the rationale with a retry affordance
	Close        // terminal, the application cannot function
)

func (s Step) String() string {
	switch s {
	case Proceed:
		return "proceed"
	case Ask:
		return "ask"
	case Explain:
		return "explain"
	default:
		return "close"
	}
}

// Flow tracks whether the rationale has been shown. Once it returns Close
// it never returns anything else.
type Flow struct {
	explained bool
	closed    bool
}

// Begin maps the result of Gate.Check to the first step.
func (f *Flow) Begin(s State) Step {
	if f.closed {
		return Close
	}
	switch s {
	case Granted:
		return Proceed
	case DeniedHard:
		return f.close()
	case DeniedSoft:
		return f.explain()
	default:
		return Ask
	}
}

// Answer maps the result of a Request to the next step.
func (f *Flow) Answer(granted bool) Step {
	if f.closed {
		return Close
	}
	if granted {
		return Proceed
	}
	if f.explained {
		return f.close()
	}
	return f.explain()
}

// Explained reports whether the rationale was shown.
func (f *Flow) Explained() bool { return f.explained }

func (f *Flow) explain() Step {
	f.explained = true
	return Explain
}

func (f *Flow) close() Step {
	f.closed = true
	return Close
}
