package checkpointer

import "fmt"

// fileEnumerator enumerates checkpoint filenames
type fileEnumerator struct {
	i         int
	prefix    string
	extension string
}

// next returns the name of the next consecutive enumerated file
func (f *fileEnumerator) next() string {
	f.i++
	return fmt.Sprintf("%s%d%s", f.prefix, f.i, f.extension)
}

// FilenameEnumerator returns a function which will return filenames
// with a counter integer suffix, starting at start+1. The prefix
// parameter is the full filename with its path, e.g. the run identifier
// of an experiment, while the extension parameter determines the file
// extension.
func FilenameEnumerator(start int, prefix, extension string) func() string {
	enum := fileEnumerator{i: start, prefix: prefix, extension: extension}

	return enum.next
}
