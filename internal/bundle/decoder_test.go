package bundle

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHelloBundle(t *testing.T) {
	t.Parallel()

	b, err := DecodeBytes(helloBundle().bytes(t), nil)
	require.NoError(t, err)

	assert.Equal(t, Signature, b.Signature)
	assert.Equal(t, uint32(6), b.Version)
	assert.Equal(t, "5.x.x", b.UnityVersion)
	assert.Equal(t, "2019.4.40f1", b.UnityRevision)
	require.Len(t, b.Directory, 1)
	assert.Equal(t, "data", b.Directory[0].Path)
	assert.Equal(t, []byte{0x48, 0x65, 0x6C, 0x6C, 0x6F}, b.Payload)

	data, err := b.File("data")
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(data))

	b.RecompressToLZMA()
	encoded, err := EncodeBytes(b, nil)
	require.NoError(t, err)

	again, err := DecodeBytes(encoded, nil)
	require.NoError(t, err)
	assert.Equal(t, b.Directory, again.Directory)
	assert.Equal(t, []byte{0x48, 0x65, 0x6C, 0x6C, 0x6F}, again.Payload)
	require.Len(t, again.Blocks, 1)
	assert.Equal(t, CompressionLZMA, again.Blocks[0].Compression())
	assert.Equal(t, uint32(5), again.Blocks[0].UncompressedSize)
}

func TestDecodeRejectsSignature(t *testing.T) {
	t.Parallel()

	raw := helloBundle()
	raw.signature = "UnityWeb"

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated tag", data: []byte("Unity")},
		{name: "tag without terminator", data: []byte("UnityFS")},
		{name: "other bundle type", data: raw.bytes(t)},
		{name: "long garbage", data: bytes.Repeat([]byte{'A'}, 4096)},
		{name: "binary garbage", data: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes(tt.data, nil)
			assert.ErrorIs(t, err, ErrUnsupportedBundle)
		})
	}
}

func TestDecodeRejectsMultipleBlocks(t *testing.T) {
	t.Parallel()

	raw := rawBundle{
		version: 6,
		blocks: []rawBlock{
			{uncompressedSize: 64, compressedSize: 4, flags: uint16(CompressionLZ4)},
			{uncompressedSize: 64, compressedSize: 4, flags: uint16(CompressionLZ4)},
		},
		entries: []rawEntry{{offset: 0, size: 128, path: "data"}},
		// not valid lz4, so reaching decompression would fail differently
		payload: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}

	_, err := DecodeBytes(raw.bytes(t), nil)
	assert.ErrorIs(t, err, ErrMultipleBlocks)
	assert.NotErrorIs(t, err, ErrDecompress)
}

func TestDecodeInfoAcceptsMultipleBlocks(t *testing.T) {
	t.Parallel()

	raw := rawBundle{
		version: 7,
		blocks: []rawBlock{
			{uncompressedSize: 64, compressedSize: 4, flags: uint16(CompressionLZ4)},
			{uncompressedSize: 64, compressedSize: 4, flags: uint16(CompressionLZ4)},
		},
		entries: []rawEntry{{offset: 0, size: 128, path: "data"}},
		payload: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}

	b, err := NewDecoder(bytes.NewReader(raw.bytes(t)), nil).DecodeInfo()
	require.NoError(t, err)
	assert.Len(t, b.Blocks, 2)
	assert.Equal(t, CompressionLZ4, b.Blocks[1].Compression())
	assert.Equal(t, []string{"data"}, b.ListFiles())
	assert.Empty(t, b.Payload)

	_, err = b.BlockCompression()
	assert.ErrorIs(t, err, ErrMultipleBlocks)
}

func TestInspectFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hello.bundle")
	require.NoError(t, os.WriteFile(path, helloBundle().bytes(t), 0o644))

	b, err := InspectFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, Signature, b.Signature)
	assert.Len(t, b.Blocks, 1)
	assert.Empty(t, b.Payload)

	_, err = InspectFile(filepath.Join(t.TempDir(), "missing.bundle"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeRejectsZeroBlocks(t *testing.T) {
	t.Parallel()

	raw := rawBundle{version: 6}
	_, err := DecodeBytes(raw.bytes(t), nil)
	assert.ErrorIs(t, err, ErrMultipleBlocks)
}

func TestDecodeRejectsTruncatedBlock(t *testing.T) {
	t.Parallel()

	raw := helloBundle()
	raw.blocks[0].compressedSize = 500

	_, err := DecodeBytes(raw.bytes(t), nil)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDecodeRejectsOversizedTables(t *testing.T) {
	t.Parallel()

	data := helloBundle().bytes(t)

	// block count sits right after the 16-byte hash of the uncompressed blocks info
	headerLen := len("UnityFS\x00") + 4 + len("5.x.x\x00") + len("2019.4.40f1\x00") + 8 + 4 + 4 + 4
	binary.BigEndian.PutUint32(data[headerLen+16:], 1_000_000)

	_, err := DecodeBytes(data, nil)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDecodePermissivePaths(t *testing.T) {
	t.Parallel()

	raw := helloBundle()
	raw.entries[0].path = "a\xffb"

	b, err := DecodeBytes(raw.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", b.Directory[0].Path)
}

func TestDecodeVersion7Alignment(t *testing.T) {
	t.Parallel()

	raw := helloBundle()
	raw.version = 7
	raw.flags = uint32(FlagBlockInfoNeedPaddingAtStart)

	b, err := DecodeBytes(raw.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), b.Version)
	assert.Equal(t, "Hello", string(b.Payload))
}

func TestDecodeZstdBlock(t *testing.T) {
	t.Parallel()

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()

	payload := samplePayload(4095)
	frame := enc.EncodeAll(payload, nil)

	raw := rawBundle{
		version: 7,
		blocks:  []rawBlock{{uncompressedSize: uint32(len(payload)), compressedSize: uint32(len(frame)), flags: uint16(CompressionZstd)}},
		entries: []rawEntry{{offset: 0, size: uint64(len(payload)), path: "data"}},
		payload: frame,
	}

	b, err := DecodeBytes(raw.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, payload, b.Payload)
	assert.Equal(t, CompressionZstd, b.Blocks[0].Compression())
}

func TestDecodeUnknownCompressionPassthrough(t *testing.T) {
	t.Parallel()

	raw := helloBundle()
	raw.blocks[0].flags = 0x3F

	b, err := DecodeBytes(raw.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(b.Payload))
}

func TestDecodeLimits(t *testing.T) {
	t.Parallel()

	payload := samplePayload(2048)
	raw := rawBundle{
		version: 6,
		blocks:  []rawBlock{{uncompressedSize: 2048, compressedSize: 2048}},
		entries: []rawEntry{{offset: 0, size: 2048, path: "data"}},
		payload: payload,
	}
	data := raw.bytes(t)

	_, err := DecodeBytes(data, &DecoderOptions{Limits: Limits{MaxUncompressedSize: 1024}})
	assert.ErrorIs(t, err, ErrSizeLimit)

	_, err = DecodeBytes(data, &DecoderOptions{Limits: Limits{MaxCompressedSize: 1024}})
	assert.ErrorIs(t, err, ErrSizeLimit)

	b, err := DecodeBytes(data, &DecoderOptions{Limits: Limits{MaxCompressedSize: 4096, MaxUncompressedSize: 4096}})
	require.NoError(t, err)
	assert.Equal(t, payload, b.Payload)
}

func TestLimitsFor(t *testing.T) {
	t.Parallel()

	l, err := LimitsFor(PlatformNone)
	require.NoError(t, err)
	assert.Zero(t, l)

	l, err = LimitsFor("Android")
	require.NoError(t, err)
	assert.Equal(t, uint64(AndroidCompressedSizeLimit), l.MaxCompressedSize)
	assert.Equal(t, uint64(AndroidUncompressedSizeLimit), l.MaxUncompressedSize)

	l, err = LimitsFor(PlatformPC)
	require.NoError(t, err)
	assert.Equal(t, uint64(PCCompressedSizeLimit), l.MaxCompressedSize)

	_, err = LimitsFor("switch")
	assert.Error(t, err)
}
