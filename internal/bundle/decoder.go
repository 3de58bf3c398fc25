package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	// longest signature read before giving up on an unknown file
	maxSignatureLength = 32

	blockRecordSize = 4 + 4 + 2
	// offset, size, flags and at least the path terminator
	minDirectoryRecordSize = 8 + 8 + 4 + 1
)

// DecoderOptions configures bundle decoding
type DecoderOptions struct {
	// Limits rejects bundles declaring larger sizes. The zero value is unlimited.
	Limits Limits
}

// Decoder reads a single bundle from a seekable stream
type Decoder struct {
	r      io.ReadSeeker
	limits Limits
	end    int64
}

// NewDecoder creates a decoder reading from r. opts may be nil.
func NewDecoder(r io.ReadSeeker, opts *DecoderOptions) *Decoder {
	d := &Decoder{r: r}
	if opts != nil {
		d.limits = opts.Limits
	}
	return d
}

// Decode parses the whole bundle including the decompressed payload.
// Only bundles with exactly one block are supported.
func (d *Decoder) Decode() (*Bundle, error) {
	b, err := d.DecodeInfo()
	if err != nil {
		return nil, err
	}

	if len(b.Blocks) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrMultipleBlocks, len(b.Blocks))
	}

	block := b.Blocks[0]
	if err := d.limits.checkCompressed("block", uint64(block.CompressedSize)); err != nil {
		return nil, err
	}
	if err := d.limits.checkUncompressed("block", uint64(block.UncompressedSize)); err != nil {
		return nil, err
	}

	data, err := d.readSegment("block", block.CompressedSize)
	if err != nil {
		return nil, err
	}

	payload, err := Decompress(block.Compression(), data, int(block.UncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("decompressing block: %w", err)
	}
	b.Payload = payload

	slog.Debug("Bundle decoded",
		"block_compression", block.Compression(),
		"compressed_size", block.CompressedSize,
		"payload_size", len(payload),
		"entries", len(b.Directory))

	return b, nil
}

// DecodeInfo parses the header, block table and directory without touching the payload.
// It accepts any block count, so multi-block bundles can still be inspected.
// The stream is left at the start of the payload area.
func (d *Decoder) DecodeInfo() (*Bundle, error) {
	if err := d.measure(); err != nil {
		return nil, err
	}

	signature, err := readString(d.r, maxSignatureLength)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errStringTooLong) {
			return nil, fmt.Errorf("%w: reading signature: %w", ErrUnsupportedBundle, err)
		}
		return nil, fmt.Errorf("reading signature: %w", err)
	}
	if signature != Signature {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBundle, signature)
	}

	b := &Bundle{Signature: signature}
	if err := d.readHeader(b); err != nil {
		return nil, err
	}

	slog.Debug("Bundle header",
		"version", b.Version,
		"unity_version", b.UnityVersion,
		"unity_revision", b.UnityRevision,
		"size", b.Size,
		"flags", fmt.Sprintf("0x%x", uint32(b.Flags)),
		"blocks_info_compression", b.Flags.Compression())

	if b.Version >= alignedHeaderVersion {
		if err := alignRead(d.r); err != nil {
			return nil, fmt.Errorf("aligning header: %w", err)
		}
	}

	blocksInfo, err := d.readBlocksInfo(b)
	if err != nil {
		return nil, err
	}

	if err := parseBlocksInfo(b, blocksInfo); err != nil {
		return nil, err
	}

	if b.Flags.Has(FlagBlockInfoNeedPaddingAtStart) {
		if err := alignRead(d.r); err != nil {
			return nil, fmt.Errorf("aligning payload: %w", err)
		}
	}

	return b, nil
}

// measure records the stream length and rewinds to where decoding starts
func (d *Decoder) measure() error {
	start, err := position(d.r)
	if err != nil {
		return fmt.Errorf("reading stream position: %w", err)
	}
	d.end, err = d.r.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("measuring stream: %w", err)
	}
	if _, err := d.r.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding stream: %w", err)
	}
	return nil
}

func (d *Decoder) readHeader(b *Bundle) error {
	var err error

	if b.Version, err = readUint32(d.r); err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	if b.UnityVersion, err = readString(d.r, maxStringLength); err != nil {
		return fmt.Errorf("reading unity version: %w", err)
	}
	if b.UnityRevision, err = readString(d.r, maxStringLength); err != nil {
		return fmt.Errorf("reading unity revision: %w", err)
	}
	if b.Size, err = readUint64(d.r); err != nil {
		return fmt.Errorf("reading size: %w", err)
	}
	if b.CompressedBlocksInfoSize, err = readUint32(d.r); err != nil {
		return fmt.Errorf("reading compressed blocks info size: %w", err)
	}
	if b.UncompressedBlocksInfoSize, err = readUint32(d.r); err != nil {
		return fmt.Errorf("reading uncompressed blocks info size: %w", err)
	}

	flags, err := readUint32(d.r)
	if err != nil {
		return fmt.Errorf("reading flags: %w", err)
	}
	b.Flags = ArchiveFlags(flags)

	return nil
}

// readBlocksInfo returns the decompressed blocks-info segment, leaving the stream where the payload area starts
func (d *Decoder) readBlocksInfo(b *Bundle) ([]byte, error) {
	if err := d.limits.checkCompressed("blocks info", uint64(b.CompressedBlocksInfoSize)); err != nil {
		return nil, err
	}
	if err := d.limits.checkUncompressed("blocks info", uint64(b.UncompressedBlocksInfoSize)); err != nil {
		return nil, err
	}

	resume := int64(-1)
	if b.Flags.Has(FlagBlocksInfoAtEnd) {
		pos, err := position(d.r)
		if err != nil {
			return nil, fmt.Errorf("reading stream position: %w", err)
		}
		if int64(b.CompressedBlocksInfoSize) > d.end {
			return nil, fmt.Errorf("%w: blocks info of %d bytes exceeds stream of %d bytes",
				ErrInvalidData, b.CompressedBlocksInfoSize, d.end)
		}
		if _, err := d.r.Seek(d.end-int64(b.CompressedBlocksInfoSize), io.SeekStart); err != nil {
			return nil, fmt.Errorf("seeking to blocks info: %w", err)
		}
		resume = pos
	}

	compressed, err := d.readSegment("blocks info", b.CompressedBlocksInfoSize)
	if err != nil {
		return nil, err
	}

	if resume >= 0 {
		if _, err := d.r.Seek(resume, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seeking back from blocks info: %w", err)
		}
	}

	data, err := Decompress(b.Flags.Compression(), compressed, int(b.UncompressedBlocksInfoSize))
	if err != nil {
		return nil, fmt.Errorf("decompressing blocks info: %w", err)
	}

	return data, nil
}

// readSegment reads exactly size bytes after checking they are present in the stream
func (d *Decoder) readSegment(what string, size uint32) ([]byte, error) {
	pos, err := position(d.r)
	if err != nil {
		return nil, fmt.Errorf("reading stream position: %w", err)
	}
	if pos+int64(size) > d.end {
		return nil, fmt.Errorf("%w: %s of %d bytes at offset %d exceeds stream of %d bytes",
			ErrInvalidData, what, size, pos, d.end)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}

	return data, nil
}

func parseBlocksInfo(b *Bundle, data []byte) error {
	r := bytes.NewReader(data)

	if _, err := io.ReadFull(r, b.Hash[:]); err != nil {
		return fmt.Errorf("%w: reading blocks info hash: %w", ErrInvalidData, err)
	}

	blockCount, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("%w: reading block count: %w", ErrInvalidData, err)
	}
	if uint64(blockCount)*blockRecordSize > uint64(r.Len()) {
		return fmt.Errorf("%w: %d blocks do not fit in %d bytes", ErrInvalidData, blockCount, r.Len())
	}

	b.Blocks = make([]Block, blockCount)
	for i := range b.Blocks {
		block := &b.Blocks[i]
		if block.UncompressedSize, err = readUint32(r); err != nil {
			return fmt.Errorf("%w: reading block %d: %w", ErrInvalidData, i, err)
		}
		if block.CompressedSize, err = readUint32(r); err != nil {
			return fmt.Errorf("%w: reading block %d: %w", ErrInvalidData, i, err)
		}
		if block.Flags, err = readUint16(r); err != nil {
			return fmt.Errorf("%w: reading block %d: %w", ErrInvalidData, i, err)
		}
	}

	entryCount, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("%w: reading directory count: %w", ErrInvalidData, err)
	}
	if uint64(entryCount)*minDirectoryRecordSize > uint64(r.Len()) {
		return fmt.Errorf("%w: %d directory entries do not fit in %d bytes", ErrInvalidData, entryCount, r.Len())
	}

	b.Directory = make([]DirectoryEntry, entryCount)
	for i := range b.Directory {
		entry := &b.Directory[i]
		if entry.Offset, err = readUint64(r); err != nil {
			return fmt.Errorf("%w: reading directory entry %d: %w", ErrInvalidData, i, err)
		}
		if entry.Size, err = readUint64(r); err != nil {
			return fmt.Errorf("%w: reading directory entry %d: %w", ErrInvalidData, i, err)
		}
		if entry.Flags, err = readUint32(r); err != nil {
			return fmt.Errorf("%w: reading directory entry %d: %w", ErrInvalidData, i, err)
		}
		if entry.Path, err = readString(r, maxStringLength); err != nil {
			return fmt.Errorf("%w: reading directory entry %d path: %w", ErrInvalidData, i, err)
		}
	}

	slog.Debug("Blocks info parsed", "blocks", len(b.Blocks), "entries", len(b.Directory))

	return nil
}
