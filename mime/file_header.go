package mime

import (
	"bytes"
	"io"
	"os"
)

// Close is a no-op: a sectionReadCloser reads from an in-memory byte
// slice, so there is nothing to release.
func (s sectionReadCloser) Close() error { return nil }

// Open opens and returns the FileHeader's associated File.
func (fh *FileHeader) Open() (File, error) {
	if b := fh.content; b != nil {
		r := io.NewSectionReader(bytes.NewReader(b), 0, int64(len(b)))
		return sectionReadCloser{r}, nil
	}
	return os.Open(fh.tmpfile)
}
