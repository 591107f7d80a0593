package light

// Lifecycle is the state of an adapter within the host platform.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Attached
	Active
	Unavailable
	Detached
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case Attached:
		return "attached"
	case Active:
		return "active"
	case Unavailable:
		return "unavailable"
	case Detached:
		return "detached"
	}

	return ""
}
