// Package checkpointer implements periodic saving of model parameters
// during an experiment
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Checkpointer checkpoints/saves serializable objects based on the
// iteration of an experiment
type Checkpointer interface {
	Checkpoint(iter int) error
}

// Save gob-encodes object into the file filename
func Save(filename string, object gob.GobEncoder) error {
	data, err := object.GobEncode()
	if err != nil {
		return fmt.Errorf("save: could not encode object: %v", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load decodes the file filename into object
func Load(filename string, object gob.GobDecoder) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := object.GobDecode(data); err != nil {
		return fmt.Errorf("load: could not decode object: %v", err)
	}
	return nil
}
