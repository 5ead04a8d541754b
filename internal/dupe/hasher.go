package dupe

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	// readBlockSize is the copy buffer size for full digests.
	readBlockSize = 32 * 1024

	// partialBytes is how much of a file the partial digest covers. Size
	// buckets of files larger than this are subdivided by a cheap prefix
	// hash before any full digest is computed.
	partialBytes = 64 * 1024
)

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, readBlockSize)
		return &b
	},
}

// digestFile returns the lowercase-hex SHA-256 of the file's full content.
// Two files with identical content always produce identical digests; this is
// the sole criterion for "duplicate". The file handle is released on every
// exit path.
func digestFile(path string, progress *Progress) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	progress.FullHashed.Add(1)

	h := sha256.New()
	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	n, err := io.CopyBuffer(h, f, *bufPtr)
	progress.BytesRead.Add(n)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// partialDigest returns the xxhash64 of the first partialBytes of the file.
// It is a pre-filter only: two files with equal partial digests may still
// differ, so a partial digest is never used as a duplicate verdict.
func partialDigest(path string, progress *Progress) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	progress.PartialHashed.Add(1)

	buf := make([]byte, partialBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, err
	}
	progress.BytesRead.Add(int64(n))

	return xxhash.Sum64(buf[:n]), nil
}
