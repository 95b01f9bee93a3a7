package course

// ModuleState is the unlock state of one module relative to a course's
// completed_modules cursor.
type ModuleState int

const (
	StateLocked ModuleState = iota
	StateCurrent
	StatePassed
)

func (s ModuleState) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateCurrent:
		return "current"
	case StatePassed:
		return "passed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s ModuleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateOf returns the state of module i given completed passed modules.
func StateOf(completed, i int) ModuleState {
	switch {
	case i < completed:
		return StatePassed
	case i == completed:
		return StateCurrent
	default:
		return StateLocked
	}
}

// ModuleStates returns the state of every module of c in order.
func ModuleStates(c Course) []ModuleState {
	states := make([]ModuleState, len(c.Modules))
	for i := range c.Modules {
		states[i] = StateOf(c.CompletedModules, i)
	}
	return states
}
