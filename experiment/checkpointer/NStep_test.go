package checkpointer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// blob is a Serializable holding raw bytes
type blob struct {
	data []byte
}

func (b *blob) GobEncode() ([]byte, error) {
	return append([]byte(nil), b.data...), nil
}

func (b *blob) GobDecode(in []byte) error {
	b.data = append([]byte(nil), in...)
	return nil
}

func TestNStep(t *testing.T) {
	dir := t.TempDir()
	object := &blob{data: []byte("params")}
	c, err := NewNStep(3, object,
		FilenameEnumerator(0, filepath.Join(dir, "run-"), ".bin"))
	if err != nil {
		t.Fatalf("newnstep: %v", err)
	}

	for i := 1; i <= 7; i++ {
		if err := c.Checkpoint(i); err != nil {
			t.Fatalf("checkpoint: %v", err)
		}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("number of checkpoints \n\twant(2) \n\thave(%v)", len(files))
	}
	if _, err := os.Stat(filepath.Join(dir, "run-2.bin")); err != nil {
		t.Errorf("second checkpoint: %v", err)
	}

	loaded := &blob{}
	if err := Load(filepath.Join(dir, "run-1.bin"), loaded); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.data, object.data) {
		t.Errorf("loaded data \n\twant(%s) \n\thave(%s)", object.data,
			loaded.data)
	}
}

func TestNewNStepInvalid(t *testing.T) {
	if _, err := NewNStep(0, &blob{}, nil); err == nil {
		t.Errorf("newnstep: expected error for interval 0")
	}
}
