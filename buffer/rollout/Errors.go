package rollout

import "errors"

// BufferError implements errors unique to a rollout buffer
type BufferError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *BufferError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errEmptyBuffer = errors.New("buffer empty")

var errInsufficientSamples = errors.New("minimum number of rollouts not " +
	"yet reached")

// IsInsufficientSamples returns whether or not an error reports that
// there are too few rollouts in the buffer to sample an update batch.
func IsInsufficientSamples(err error) bool {
	if bufferErr, ok := err.(*BufferError); ok {
		err = bufferErr.Err
	}
	return err == errInsufficientSamples
}

// IsEmptyBuffer returns whether or not an error reports that a
// rollout buffer is empty.
func IsEmptyBuffer(err error) bool {
	if bufferErr, ok := err.(*BufferError); ok {
		err = bufferErr.Err
	}
	return err == errEmptyBuffer
}
