// Package hostbuf loads raw binary sources into transient host buffers. A
// Buffer is owned by a single caller and must be closed once its contents have
// been consumed.
package hostbuf

import (
	"fmt"
	"io"
	"os"
)

type Buffer struct {
	data    []byte
	mmapped bool
	path    string
}

// Open maps path read-only. If mmap is unavailable it falls back to
// ReadAt-based loading. Every failure wraps ErrSourceUnavailable.
func Open(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrSourceUnavailable, path, err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, path)
	}
	size64 := stat.Size()
	if size64 < 0 || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s has unsupported size %d", ErrSourceUnavailable, path, size64)
	}
	size := int(size64)
	if size == 0 {
		return &Buffer{data: []byte{}, path: path}, nil
	}

	if data, err := mmapFile(f, size); err == nil {
		return &Buffer{data: data, mmapped: true, path: path}, nil
	}

	data, err := readAllAt(f, size)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, path, err)
	}
	return &Buffer{data: data, path: path}, nil
}

// ReadFile returns a private copy of the contents of path.
func ReadFile(path string) ([]byte, error) {
	b, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()
	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	return out, nil
}

// Bytes returns the loaded contents. The slice must not be retained after
// Close.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

func (b *Buffer) Len() int { return len(b.Bytes()) }

func (b *Buffer) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

// Close releases the buffer and any mmap backing. It is safe to call more
// than once.
func (b *Buffer) Close() error {
	if b == nil || b.data == nil {
		return nil
	}
	var err error
	if b.mmapped {
		err = munmap(b.data)
	}
	b.data = nil
	b.mmapped = false
	return err
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}
