package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(MessageRequestWriteFile)
	w.WriteString16("data/foo.bin").WriteUint64(2048).WriteUint64(1024).WriteUint32(2)

	body := w.Bytes()
	require.Equal(t, byte(MessageRequestWriteFile), body[0])

	r := NewReader(body[1:])
	path, err := r.ReadString16()
	require.NoError(t, err)
	require.Equal(t, "data/foo.bin", path)

	fileSize, err := r.ReadUint64()
	require.NoError(t, err)
	require.EqualValues(t, 2048, fileSize)

	blockSize, err := r.ReadUint64()
	require.NoError(t, err)
	require.EqualValues(t, 1024, blockSize)

	blockCount, err := r.ReadUint32()
	require.NoError(t, err)
	require.EqualValues(t, 2, blockCount)
}

func TestWriterReaderStringsAndRaw(t *testing.T) {
	hash := []byte{1, 2, 3, 4}
	w := NewWriter(MessageSendFileData)
	w.WriteString16("a/b.bin").WriteUint32(3)
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	w.WriteRaw(raw)

	r := NewReader(w.Bytes()[1:])
	path, err := r.ReadString16()
	require.NoError(t, err)
	require.Equal(t, "a/b.bin", path)

	idx, err := r.ReadUint32()
	require.NoError(t, err)
	require.EqualValues(t, 3, idx)

	require.Equal(t, raw, r.ReadRaw())

	w2 := NewWriter(MessageResponseFileBlockHashes)
	w2.WriteBytes8(hash)
	r2 := NewReader(w2.Bytes()[1:])
	got, err := r2.ReadBytes8()
	require.NoError(t, err)
	require.Equal(t, hash, got)
}

func TestReaderErrorsOnShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.ReadUint64()
	require.Error(t, err)
}
