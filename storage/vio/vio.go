// Package vio provides a portable vectored-write helper shared by the WAL
// (access/wal) and the MVCC buffer (access/csmvcc): both write a small
// number of discrete buffers (header + body, or staged records) to a known
// file offset via writev(2), chunked to stay under IOV_MAX and retried
// across partial writes.
package vio

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// MaxIOV bounds how many buffers are handed to a single writev(2) call.
const MaxIOV = 1024

// WriteAt seeks f to offset and writes chunks via writev(2), chunked to
// MaxIOV buffers and retried across partial writes. Safe for a single
// writer appending/overwriting sequentially; not safe to call concurrently
// on the same *os.File from multiple goroutines.
func WriteAt(f *os.File, offset int64, chunks [][]byte) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	var total int64
	for len(chunks) > 0 {
		n := len(chunks)
		if n > MaxIOV {
			n = MaxIOV
		}
		group := chunks[:n]
		chunks = chunks[n:]
		written, err := writeGroup(f, group)
		total += written
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func writeGroup(f *os.File, group [][]byte) (int64, error) {
	iovs := make([][]byte, len(group))
	copy(iovs, group)
	var total int64
	for len(iovs) > 0 {
		n, err := unix.Writev(int(f.Fd()), iovs)
		if n > 0 {
			total += int64(n)
			iovs = dropWritten(iovs, int(n))
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func dropWritten(iovs [][]byte, n int) [][]byte {
	for n > 0 && len(iovs) > 0 {
		if n >= len(iovs[0]) {
			n -= len(iovs[0])
			iovs = iovs[1:]
		} else {
			iovs[0] = iovs[0][n:]
			n = 0
		}
	}
	return iovs
}
