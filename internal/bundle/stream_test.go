package bundle

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadString(t *testing.T) {
	t.Parallel()

	r := bytes.NewReader([]byte("UnityFS\x00a\xffb\x00\x00"))

	s, err := readString(r, maxStringLength)
	require.NoError(t, err)
	assert.Equal(t, "UnityFS", s)

	s, err = readString(r, maxStringLength)
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", s)

	s, err = readString(r, maxStringLength)
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = readString(r, maxStringLength)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadStringWithoutByteReader(t *testing.T) {
	t.Parallel()

	// io.MultiReader does not implement io.ByteReader
	r := io.MultiReader(strings.NewReader("Uni"), strings.NewReader("tyFS\x00rest"))
	s, err := readString(r, maxStringLength)
	require.NoError(t, err)
	assert.Equal(t, "UnityFS", s)
}

func TestReadStringErrors(t *testing.T) {
	t.Parallel()

	_, err := readString(strings.NewReader("Unity"), maxStringLength)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = readString(strings.NewReader(strings.Repeat("x", 40)+"\x00"), 32)
	assert.ErrorIs(t, err, errStringTooLong)
}

func TestIntegersAreBigEndian(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeUint16(&buf, 0x0102))
	require.NoError(t, writeUint32(&buf, 0x03040506))
	require.NoError(t, writeUint64(&buf, 0x0708090A0B0C0D0E))
	require.NoError(t, writeString(&buf, "ok"))

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 'o', 'k', 0}, buf.Bytes())

	r := bytes.NewReader(buf.Bytes())
	u16, err := readUint16(r)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), u16)
	u32, err := readUint32(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x03040506), u32)
	u64, err := readUint64(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0708090A0B0C0D0E), u64)
	s, err := readString(r, maxStringLength)
	require.NoError(t, err)
	assert.Equal(t, "ok", s)

	_, err = readUint32(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestAlignUp(t *testing.T) {
	t.Parallel()

	tests := []struct{ pos, want int64 }{
		{0, 0}, {1, 16}, {15, 16}, {16, 16}, {17, 32}, {46, 48},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alignUp(tt.pos, 16), "alignUp(%d)", tt.pos)
	}
}

func TestAlignReadWrite(t *testing.T) {
	t.Parallel()

	w := &writeBuffer{}
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, alignWrite(w))
	assert.Equal(t, append([]byte("abc"), make([]byte, 13)...), w.Bytes())

	// already aligned streams are left alone
	require.NoError(t, alignWrite(w))
	assert.Len(t, w.Bytes(), 16)

	r := bytes.NewReader(make([]byte, 40))
	_, err = r.Seek(17, io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, alignRead(r))
	pos, err := position(r)
	require.NoError(t, err)
	assert.Equal(t, int64(32), pos)
}

func TestWriteBufferSeekAndPatch(t *testing.T) {
	t.Parallel()

	w := &writeBuffer{}
	require.NoError(t, writeUint32(w, 0))
	_, err := w.Write([]byte("payload"))
	require.NoError(t, err)

	end, err := position(w)
	require.NoError(t, err)
	assert.Equal(t, int64(11), end)

	_, err = w.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, writeUint32(w, uint32(end)))
	_, err = w.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	_, err = w.Write([]byte("!"))
	require.NoError(t, err)

	assert.Equal(t, []byte("\x00\x00\x00\x0bpayload!"), w.Bytes())

	_, err = w.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}
