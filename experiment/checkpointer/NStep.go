package checkpointer

import "fmt"

// nStep implements checkpointing every N iterations
type nStep struct {
	interval int
	object   Serializable // Object to save

	// filename returns the string filename of the file to save the object
	// in.
	//
	// If each serialized object should be saved in a separate file with
	// each file having an incremented number as a suffix (e.g.
	// file1.bin, file2.bin, ..., fileK.bin), then simply use the
	// static function FilenameEnumerator, which will return a function
	// that will enumerate filenames.
	filename func() string
}

// NewNStep returns a checkpointer that checkpoints every n iterations.
func NewNStep(n int, object Serializable,
	filename func() string) (Checkpointer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("newnstep: interval must be positive, got %d",
			n)
	}
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint checkpoints the Checkpointer's tracked object by saving
// it to the next file if iter is a multiple of the interval
func (n *nStep) Checkpoint(iter int) error {
	if iter%n.interval == 0 {
		return Save(n.filename(), n.object)
	}
	return nil
}
