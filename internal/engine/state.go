package engine

// State is a step of the batch grading state machine.
type State int

// Batch states, in order.
const (
	StateInitialize State = iota
	StateGradeNextTest
	StateCompileResults
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitialize:
		return "initialize"
	case StateGradeNextTest:
		return "grade_next_test"
	case StateCompileResults:
		return "compile_results"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// next returns the state that follows s. remaining is the number of tests
// not yet graded; grade_next_test loops on itself while it is positive.
func next(s State, remaining int) State {
	switch s {
	case StateInitialize, StateGradeNextTest:
		if remaining > 0 {
			return StateGradeNextTest
		}
		return StateCompileResults
	default:
		return StateDone
	}
}
