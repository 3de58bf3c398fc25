package bundle

import (
	"fmt"
	"io"
	"log/slog"
	"math"
)

// EncoderOptions configures bundle encoding
type EncoderOptions struct {
	// Limits rejects payloads larger than allowed. The zero value is unlimited.
	Limits Limits
}

// Encoder writes a single bundle to a seekable stream
type Encoder struct {
	w      io.WriteSeeker
	limits Limits
}

// NewEncoder creates an encoder writing to w. opts may be nil.
func NewEncoder(w io.WriteSeeker, opts *EncoderOptions) *Encoder {
	e := &Encoder{w: w}
	if opts != nil {
		e.limits = opts.Limits
	}
	return e
}

// Encode writes b, compressing the payload with the codec of its single block and the
// blocks-info segment with the codec in b.Flags. Directory entries are copied verbatim, so
// the payload layout must be the one they were decoded against.
func (e *Encoder) Encode(b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if uint64(len(b.Payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: payload of %d bytes does not fit in a block", ErrSizeLimit, len(b.Payload))
	}
	if err := e.limits.checkUncompressed("block", uint64(len(b.Payload))); err != nil {
		return err
	}

	if err := writeString(e.w, b.Signature); err != nil {
		return fmt.Errorf("writing signature: %w", err)
	}
	if err := writeUint32(e.w, b.Version); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	if err := writeString(e.w, b.UnityVersion); err != nil {
		return fmt.Errorf("writing unity version: %w", err)
	}
	if err := writeString(e.w, b.UnityRevision); err != nil {
		return fmt.Errorf("writing unity revision: %w", err)
	}

	sizePos, err := position(e.w)
	if err != nil {
		return fmt.Errorf("reading stream position: %w", err)
	}
	if err := writeUint64(e.w, 0); err != nil {
		return fmt.Errorf("writing size placeholder: %w", err)
	}

	block := b.Blocks[0]
	compressedBlock, err := Compress(block.Compression(), b.Payload)
	if err != nil {
		return fmt.Errorf("compressing block: %w", err)
	}
	if uint64(len(compressedBlock)) > math.MaxUint32 {
		return fmt.Errorf("%w: compressed block of %d bytes", ErrSizeLimit, len(compressedBlock))
	}
	if err := e.limits.checkCompressed("block", uint64(len(compressedBlock))); err != nil {
		return err
	}

	blocksInfo, err := buildBlocksInfo(b, Block{
		UncompressedSize: uint32(len(b.Payload)),
		CompressedSize:   uint32(len(compressedBlock)),
		Flags:            block.Flags,
	})
	if err != nil {
		return err
	}

	compressedBlocksInfo, err := Compress(b.Flags.Compression(), blocksInfo)
	if err != nil {
		return fmt.Errorf("compressing blocks info: %w", err)
	}

	if err := writeUint32(e.w, uint32(len(compressedBlocksInfo))); err != nil {
		return fmt.Errorf("writing compressed blocks info size: %w", err)
	}
	if err := writeUint32(e.w, uint32(len(blocksInfo))); err != nil {
		return fmt.Errorf("writing uncompressed blocks info size: %w", err)
	}
	if err := writeUint32(e.w, uint32(b.Flags)); err != nil {
		return fmt.Errorf("writing flags: %w", err)
	}

	if b.Version >= alignedHeaderVersion {
		if err := alignWrite(e.w); err != nil {
			return fmt.Errorf("aligning header: %w", err)
		}
	}

	if b.Flags.Has(FlagBlocksInfoAtEnd) {
		if err := e.writePayload(b, compressedBlock); err != nil {
			return err
		}
		if _, err := e.w.Write(compressedBlocksInfo); err != nil {
			return fmt.Errorf("writing blocks info: %w", err)
		}
	} else {
		if _, err := e.w.Write(compressedBlocksInfo); err != nil {
			return fmt.Errorf("writing blocks info: %w", err)
		}
		if err := e.writePayload(b, compressedBlock); err != nil {
			return err
		}
	}

	end, err := position(e.w)
	if err != nil {
		return fmt.Errorf("reading stream position: %w", err)
	}
	if _, err := e.w.Seek(sizePos, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to size placeholder: %w", err)
	}
	if err := writeUint64(e.w, uint64(end)); err != nil {
		return fmt.Errorf("writing size: %w", err)
	}
	if _, err := e.w.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to end: %w", err)
	}

	slog.Debug("Bundle encoded",
		"size", end,
		"block_compression", block.Compression(),
		"payload_size", len(b.Payload),
		"compressed_size", len(compressedBlock),
		"blocks_info_size", len(compressedBlocksInfo))

	return nil
}

func (e *Encoder) writePayload(b *Bundle, compressedBlock []byte) error {
	if b.Flags.Has(FlagBlockInfoNeedPaddingAtStart) {
		if err := alignWrite(e.w); err != nil {
			return fmt.Errorf("aligning payload: %w", err)
		}
	}
	if _, err := e.w.Write(compressedBlock); err != nil {
		return fmt.Errorf("writing block: %w", err)
	}
	return nil
}

// buildBlocksInfo serializes a fresh blocks-info segment holding one block.
// The hash is not recomputed and is written as zeros.
func buildBlocksInfo(b *Bundle, block Block) ([]byte, error) {
	w := &writeBuffer{}

	var zeroHash [hashSize]byte
	if _, err := w.Write(zeroHash[:]); err != nil {
		return nil, err
	}
	if err := writeUint32(w, 1); err != nil {
		return nil, err
	}
	if err := writeUint32(w, block.UncompressedSize); err != nil {
		return nil, err
	}
	if err := writeUint32(w, block.CompressedSize); err != nil {
		return nil, err
	}
	if err := writeUint16(w, block.Flags); err != nil {
		return nil, err
	}

	if err := writeUint32(w, uint32(len(b.Directory))); err != nil {
		return nil, err
	}
	for _, entry := range b.Directory {
		if err := writeUint64(w, entry.Offset); err != nil {
			return nil, err
		}
		if err := writeUint64(w, entry.Size); err != nil {
			return nil, err
		}
		if err := writeUint32(w, entry.Flags); err != nil {
			return nil, err
		}
		if err := writeString(w, entry.Path); err != nil {
			return nil, err
		}
	}

	return w.Bytes(), nil
}
