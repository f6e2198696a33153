package writer

import (
	"bufio"
	"fmt"
	"os"
)

// BinWriter appends raw payloads, e.g. an H.264 or AAC elementary stream.
type BinWriter struct {
	f     *os.File
	w     *bufio.Writer
	path  string
	bytes int64
}

// CreateBin creates a binary file at path.
func CreateBin(path string) (*BinWriter, error) {
	f, err := create(path)
	if err != nil {
		return nil, err
	}
	return &BinWriter{f: f, w: bufio.NewWriterSize(f, 256*1024), path: path}, nil
}

func (b *BinWriter) Write(p []byte) (int, error) {
	n, err := b.w.Write(p)
	b.bytes += int64(n)
	return n, err
}

// Size returns the number of bytes written.
func (b *BinWriter) Size() int64 { return b.bytes }

// Path returns the output file path.
func (b *BinWriter) Path() string { return b.path }

// Close flushes and closes the file.
func (b *BinWriter) Close() error {
	if err := b.w.Flush(); err != nil {
		b.f.Close()
		return fmt.Errorf("flush %s: %w", b.path, err)
	}
	return b.f.Close()
}
