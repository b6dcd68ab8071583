package scanner

// State is a scan lifecycle state.
type State int32

const (
	Idle       State = iota // waiting for permission
	Binding                 // permission granted, claiming the camera
	Scanning                // frames flow to the recognizer
	MatchFound              // a code was decoded, tearing down the session
	Presenting              // the payload is shown
	Closed                  // permission refused for good
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Binding:
		return "binding"
	case Scanning:
		return "scanning"
	case MatchFound:
		return "match_found"
	case Presenting:
		return "presenting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionExists reports whether a camera session can exist in s, which is
// when torch controls make sense to offer.
func (s State) SessionExists() bool {
	return s >= Binding && s <= Presenting
}
