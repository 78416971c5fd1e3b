//go:build !unix

package hostbuf

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("mmap not supported on this platform")

func mmapFile(_ *os.File, _ int) ([]byte, error) {
	return nil, errNoMmap
}

func munmap(_ []byte) error {
	return nil
}
