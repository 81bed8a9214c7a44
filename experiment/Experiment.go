// Package experiment implements functionality for running a
// meta-learning experiment
package experiment

// Interface Experiment outlines structs that can run experiments.
// The Run() method runs all iterations of the experiment, tracking
// metrics in RAM and checkpointing models as it goes. The Save()
// method then saves all tracked data to disk. This is usually
// performed after an experiment has been run.
type Experiment interface {
	Run() error
	Save() error
}
