package engine

import (
	"hash"
	"hash/crc64"
	"io"
	"strconv"
)

// ChecksumHeader carries the CRC64 of an uploaded body.
const ChecksumHeader = "X-Checksum-Crc64"

var crcTable = crc64.MakeTable(crc64.ISO)

// ChecksumReader wraps an io.Reader to compute a checksum while reading.
type ChecksumReader struct {
	r    io.Reader
	hash hash.Hash64
	n    int64
}

// NewChecksumReader creates a new ChecksumReader that wraps the given reader
// and computes a CRC64 checksum of the data read.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{
		r:    r,
		hash: crc64.New(crcTable),
	}
}

// Read reads data from the underlying reader and updates the checksum.
func (cr *ChecksumReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.n += int64(n)
		cr.hash.Write(p[:n])
	}
	return n, err
}

// Checksum returns the current checksum value.
func (cr *ChecksumReader) Checksum() uint64 {
	return cr.hash.Sum64()
}

// ChecksumHex returns the current checksum as a 16 digit hex string.
func (cr *ChecksumReader) ChecksumHex() string {
	return FormatChecksum(cr.hash.Sum64())
}

// BytesRead returns the total number of bytes read.
func (cr *ChecksumReader) BytesRead() int64 {
	return cr.n
}

// FormatChecksum renders a checksum the way it is sent in ChecksumHeader.
func FormatChecksum(sum uint64) string {
	s := strconv.FormatUint(sum, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
