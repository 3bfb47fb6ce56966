package flight

import "fmt"

// State is the controller's position in the scan pattern.
type State int

const (
	StateTakeoff State = iota + 1
	StateAscend
	StateSweepOut
	StateDescend
	StateRotateCheck
	StateSweepBack
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateTakeoff:
		return "TAKEOFF"
	case StateAscend:
		return "ASCEND"
	case StateSweepOut:
		return "SWEEP_OUT"
	case StateDescend:
		return "DESCEND"
	case StateRotateCheck:
		return "ROTATE_CHECK"
	case StateSweepBack:
		return "SWEEP_BACK"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome records how a terminated scan ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeFaulted
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFaulted:
		return "faulted"
	case OutcomeAborted:
		return "aborted"
	default:
		return "none"
	}
}

// MarshalText lets outcomes appear by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses a state name as produced by String.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateTakeoff; st <= StateTerminated; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(string(b), "State(%d)", &n); err == nil {
		*s = State(n)
		return nil
	}
	return fmt.Errorf("unknown flight state %q", b)
}

// UnmarshalText parses an outcome name as produced by String.
func (o *Outcome) UnmarshalText(b []byte) error {
	for oc := OutcomeNone; oc <= OutcomeAborted; oc++ {
		if oc.String() == string(b) {
			*o = oc
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}
