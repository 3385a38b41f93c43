package engine

import (
	"bytes"
	"hash/crc64"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumReader(t *testing.T) {
	data := []byte("hello world")

	cr := NewChecksumReader(bytes.NewReader(data))
	got, err := io.ReadAll(cr)
	require.NoError(t, err)

	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), cr.BytesRead())
	assert.Equal(t, crc64.Checksum(data, crc64.MakeTable(crc64.ISO)), cr.Checksum())
	assert.Len(t, cr.ChecksumHex(), 16)
}

func TestChecksumReaderChunked(t *testing.T) {
	data := strings.Repeat("gfupload", 1000)

	whole := NewChecksumReader(strings.NewReader(data))
	_, err := io.Copy(io.Discard, whole)
	require.NoError(t, err)

	chunked := NewChecksumReader(strings.NewReader(data))
	buf := make([]byte, 7)
	for {
		_, err := chunked.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, whole.Checksum(), chunked.Checksum())
}

func TestChecksumReaderEmpty(t *testing.T) {
	cr := NewChecksumReader(bytes.NewReader(nil))
	_, err := io.ReadAll(cr)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), cr.Checksum())
	assert.Equal(t, "0000000000000000", cr.ChecksumHex())
}

func TestFormatChecksum(t *testing.T) {
	assert.Equal(t, "00000000000000ff", FormatChecksum(255))
	assert.Equal(t, "ffffffffffffffff", FormatChecksum(^uint64(0)))
}
