package decoder

import (
	"encoding/json"
	"fmt"
)

// StateMode determines the output distribution of a StateDecoder
type StateMode int

const (
	// StateDeterministic regresses the next state directly
	StateDeterministic StateMode = iota

	// StateGaussian predicts the mean and log-variance of the next
	// state
	StateGaussian
)

// ParseStateMode returns the StateMode with the given name. Valid
// names are "deterministic" and "gaussian".
func ParseStateMode(name string) (StateMode, error) {
	switch name {
	case "deterministic":
		return StateDeterministic, nil
	case "gaussian":
		return StateGaussian, nil
	default:
		return 0, fmt.Errorf("parsestatemode: unknown state prediction "+
			"type %q", name)
	}
}

// String implements the fmt.Stringer interface
func (m StateMode) String() string {
	switch m {
	case StateDeterministic:
		return "deterministic"
	case StateGaussian:
		return "gaussian"
	default:
		return fmt.Sprintf("StateMode(%d)", int(m))
	}
}

// RewardMode determines the output distribution of a RewardDecoder
type RewardMode int

const (
	// RewardDeterministic regresses the reward directly
	RewardDeterministic RewardMode = iota

	// RewardBernoulli predicts the probability that the reward is 1
	RewardBernoulli

	// RewardCategorical predicts a distribution over state indices.
	// It requires a multi-head decoder.
	RewardCategorical
)

// ParseRewardMode returns the RewardMode with the given name. Valid
// names are "deterministic", "bernoulli", and "categorical".
func ParseRewardMode(name string) (RewardMode, error) {
	switch name {
	case "deterministic":
		return RewardDeterministic, nil
	case "bernoulli":
		return RewardBernoulli, nil
	case "categorical":
		return RewardCategorical, nil
	default:
		return 0, fmt.Errorf("parserewardmode: unknown reward prediction "+
			"type %q", name)
	}
}

// String implements the fmt.Stringer interface
func (m RewardMode) String() string {
	switch m {
	case RewardDeterministic:
		return "deterministic"
	case RewardBernoulli:
		return "bernoulli"
	case RewardCategorical:
		return "categorical"
	default:
		return fmt.Sprintf("RewardMode(%d)", int(m))
	}
}

// TaskMode determines the output of a TaskDecoder
type TaskMode int

const (
	// TaskID predicts a distribution over task identifiers
	TaskID TaskMode = iota

	// TaskDescription regresses the task descriptor directly
	TaskDescription
)

// ParseTaskMode returns the TaskMode with the given name. Valid names
// are "task_id" and "task_description".
func ParseTaskMode(name string) (TaskMode, error) {
	switch name {
	case "task_id":
		return TaskID, nil
	case "task_description":
		return TaskDescription, nil
	default:
		return 0, fmt.Errorf("parsetaskmode: unknown task prediction type %q",
			name)
	}
}

// String implements the fmt.Stringer interface
func (m TaskMode) String() string {
	switch m {
	case TaskID:
		return "task_id"
	case TaskDescription:
		return "task_description"
	default:
		return fmt.Sprintf("TaskMode(%d)", int(m))
	}
}

// MarshalJSON implements the json.Marshaler interface
func (m StateMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (m *StateMode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	mode, err := ParseStateMode(name)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (m RewardMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (m *RewardMode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	mode, err := ParseRewardMode(name)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (m TaskMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (m *TaskMode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	mode, err := ParseTaskMode(name)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
