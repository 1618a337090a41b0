package patch

import "fmt"

// State is the attachment lifecycle of a potential.
type State int

const (
	Unattached State = iota
	Attaching
	Attached
	Detaching
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attaching:
		return "attaching"
	case Attached:
		return "attached"
	case Detaching:
		return "detaching"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
