package vae

import (
	"encoding/json"
	"fmt"
)

// Strategy determines how the rows decoded for the ELBO are grouped
// into decoder calls. All strategies compute the same loss and differ
// only in peak memory and the number of decoder calls.
type Strategy int

const (
	// WholeBatch decodes all rows of the batch in a single call. It
	// requires trajectories of equal length and decoding of the whole
	// trajectory. Like the other strategies it decodes only the sampled
	// encoder cutoffs, so NumEncLen subsamples its ELBO terms too.
	WholeBatch Strategy = iota

	// SplitByTask makes one decoder call per trajectory
	SplitByTask

	// SplitByELBO makes one decoder call per encoder cutoff, across
	// all trajectories
	SplitByELBO
)

// ParseStrategy returns the Strategy with the given name. Valid names
// are "whole-batch", "split-by-task", and "split-by-elbo".
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "whole-batch":
		return WholeBatch, nil
	case "split-by-task":
		return SplitByTask, nil
	case "split-by-elbo":
		return SplitByELBO, nil
	default:
		return 0, fmt.Errorf("parsestrategy: unknown strategy %q", name)
	}
}

// String implements the fmt.Stringer interface
func (s Strategy) String() string {
	switch s {
	case WholeBatch:
		return "whole-batch"
	case SplitByTask:
		return "split-by-task"
	case SplitByELBO:
		return "split-by-elbo"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// MarshalJSON implements the json.Marshaler interface
func (s Strategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	strategy, err := ParseStrategy(name)
	if err != nil {
		return err
	}
	*s = strategy
	return nil
}
