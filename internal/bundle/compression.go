package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// Compression is the codec selector stored in the low 6 bits of a flags field
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZMA
	CompressionLZ4
	CompressionLZ4HC
	CompressionZstd
)

// String returns the human-readable name of the codec
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZMA:
		return "lzma"
	case CompressionLZ4:
		return "lz4"
	case CompressionLZ4HC:
		return "lz4hc"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Known reports whether c is one of the codecs defined by the format
func (c Compression) Known() bool {
	return c <= CompressionZstd
}

// CompressionOf extracts the codec selector from a flags value
func CompressionOf(flags uint32) Compression {
	return Compression(flags & uint32(FlagCompressionMask))
}

// ParseCompression maps a codec name to its selector
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return CompressionNone, nil
	case "lzma":
		return CompressionLZMA, nil
	case "lz4":
		return CompressionLZ4, nil
	case "lz4hc":
		return CompressionLZ4HC, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q: supported values are none, lzma, lz4, lz4hc, zstd", name)
	}
}

const (
	// raw LZMA1 properties: one props byte plus a little-endian dictionary size
	lzmaPropsSize = 5
	// classic .lzma header: properties plus a little-endian uncompressed size
	lzmaHeaderSize = 13
	// dictionary size Unity writes for LZMA bundles
	lzmaDictSize = 524288
)

// Decompress decodes src with codec c into exactly uncompressedSize bytes.
// Codecs outside the known set pass the bytes through unchanged.
func Decompress(c Compression, src []byte, uncompressedSize int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionLZMA:
		return decompressLZMA(src, uncompressedSize)
	case CompressionLZ4, CompressionLZ4HC:
		return decompressLZ4(src, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(src, uncompressedSize)
	default:
		slog.Warn("Unknown compression, treating data as uncompressed", "compression", uint8(c), "size", len(src))
		return src, nil
	}
}

// Compress encodes src with codec c. Zstd is decode-only.
func Compress(c Compression, src []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionLZMA:
		return compressLZMA(src)
	case CompressionLZ4:
		return compressLZ4(src, false)
	case CompressionLZ4HC:
		return compressLZ4(src, true)
	case CompressionZstd:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	default:
		slog.Warn("Unknown compression, storing data uncompressed", "compression", uint8(c), "size", len(src))
		return src, nil
	}
}

func decompressLZMA(src []byte, size int) ([]byte, error) {
	if len(src) < lzmaPropsSize {
		return nil, fmt.Errorf("%w: lzma stream of %d bytes is missing its properties", ErrDecompress, len(src))
	}
	if size == 0 {
		return []byte{}, nil
	}

	// The bundle stores the uncompressed size out of band, so rebuild the classic header around it
	header := make([]byte, lzmaHeaderSize)
	copy(header, src[:lzmaPropsSize])
	binary.LittleEndian.PutUint64(header[lzmaPropsSize:], uint64(size))

	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), bytes.NewReader(src[lzmaPropsSize:])))
	if err != nil {
		return nil, fmt.Errorf("%w: lzma header: %w", ErrDecompress, err)
	}

	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: lzma: %w", ErrDecompress, err)
	}

	return out, nil
}

func compressLZMA(src []byte) ([]byte, error) {
	var framed bytes.Buffer

	cfg := lzma.WriterConfig{
		Properties:   &lzma.Properties{LC: 3, LP: 0, PB: 2},
		DictCap:      lzmaDictSize,
		SizeInHeader: true,
		Size:         int64(len(src)),
	}
	w, err := cfg.NewWriter(&framed)
	if err != nil {
		return nil, fmt.Errorf("creating lzma writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}

	data := framed.Bytes()
	if len(data) < lzmaHeaderSize {
		return nil, fmt.Errorf("lzma compress: stream of %d bytes is shorter than its header", len(data))
	}

	// Keep properties and dictionary size, drop the embedded uncompressed size
	out := make([]byte, 0, len(data)-(lzmaHeaderSize-lzmaPropsSize))
	out = append(out, data[:lzmaPropsSize]...)
	out = append(out, data[lzmaHeaderSize:]...)
	return out, nil
}

func decompressLZ4(src []byte, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %w", ErrDecompress, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: lz4: expected %d bytes, got %d", ErrDecompress, size, n)
	}

	return dst, nil
}

func compressLZ4(src []byte, hc bool) ([]byte, error) {
	// A destination of CompressBlockBound always receives a valid block, even for incompressible input
	dst := make([]byte, lz4.CompressBlockBound(len(src)))

	var n int
	var err error
	if hc {
		n, err = lz4.CompressBlockHC(src, dst, lz4.Level9, nil, nil)
	} else {
		n, err = lz4.CompressBlock(src, dst, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	return dst[:n], nil
}

func decompressZstd(src []byte, size int) ([]byte, error) {
	var header zstd.Header
	if err := header.Decode(src); err != nil {
		return nil, fmt.Errorf("%w: zstd header: %w", ErrDecompress, err)
	}
	if header.HasFCS && header.FrameContentSize > uint64(size) {
		return nil, fmt.Errorf("%w: zstd: frame declares %d bytes, expected %d", ErrDecompress, header.FrameContentSize, size)
	}

	// cap decoding at the declared size so a crafted frame cannot expand past it
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(max(uint64(size), 1)))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrDecompress, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: zstd: expected %d bytes, got %d", ErrDecompress, size, len(out))
	}

	return out, nil
}
