package bundle

import (
	"fmt"
	"sort"
	"strings"
)

// Signature is the format tag every supported bundle starts with
const Signature = "UnityFS"

// ArchiveFlags is the top-level flags field of a bundle header
type ArchiveFlags uint32

const (
	// FlagCompressionMask selects the blocks-info codec
	FlagCompressionMask ArchiveFlags = 0x3F
	// FlagBlocksAndDirectoryCombined is carried through untouched
	FlagBlocksAndDirectoryCombined ArchiveFlags = 0x40
	// FlagBlocksInfoAtEnd stores the blocks-info segment at the end of the file
	FlagBlocksInfoAtEnd ArchiveFlags = 0x80
	// FlagOldWebPluginCompatibility is carried through untouched
	FlagOldWebPluginCompatibility ArchiveFlags = 0x100
	// FlagBlockInfoNeedPaddingAtStart aligns the payload to 16 bytes
	FlagBlockInfoNeedPaddingAtStart ArchiveFlags = 0x200
)

// Compression returns the blocks-info codec selector
func (f ArchiveFlags) Compression() Compression {
	return CompressionOf(uint32(f))
}

// Has reports whether every bit of flag is set
func (f ArchiveFlags) Has(flag ArchiveFlags) bool {
	return f&flag == flag
}

const (
	// alignment used for every padding in the format
	alignment = 16

	// first version that pads the header to alignment
	alignedHeaderVersion = 7

	hashSize = 16
)

// Bundle is the decoded structure of a UnityFS file.
// A Bundle is owned by a single goroutine for the whole decode, mutate, encode pipeline.
type Bundle struct {
	Signature     string
	Version       uint32
	UnityVersion  string
	UnityRevision string

	// Size is the total file length recorded in the header. Encode recomputes it.
	Size uint64

	CompressedBlocksInfoSize   uint32
	UncompressedBlocksInfoSize uint32
	Flags                      ArchiveFlags

	// Hash is read from the blocks-info segment but never validated
	Hash [hashSize]byte

	Blocks    []Block
	Directory []DirectoryEntry

	// Payload is the decompressed contents of the single block
	Payload []byte
}

// Block describes one compressed unit of the payload
type Block struct {
	UncompressedSize uint32
	CompressedSize   uint32
	Flags            uint16
}

// Compression returns the codec selector of this block
func (b Block) Compression() Compression {
	return CompressionOf(uint32(b.Flags))
}

// DirectoryEntry locates one virtual file inside the decompressed payload
type DirectoryEntry struct {
	Offset uint64
	Size   uint64
	Flags  uint32
	Path   string
}

// SetBlocksCompression replaces the codec selector of every block, keeping the other flag bits
func (b *Bundle) SetBlocksCompression(c Compression) {
	for i := range b.Blocks {
		b.Blocks[i].Flags = b.Blocks[i].Flags&^uint16(FlagCompressionMask) | uint16(c)
	}
}

// RecompressToLZMA marks every block for LZMA compression on the next Encode
func (b *Bundle) RecompressToLZMA() {
	b.SetBlocksCompression(CompressionLZMA)
}

// BlockCompression returns the codec of the single payload block
func (b *Bundle) BlockCompression() (Compression, error) {
	if len(b.Blocks) != 1 {
		return CompressionNone, fmt.Errorf("%w: found %d", ErrMultipleBlocks, len(b.Blocks))
	}
	return b.Blocks[0].Compression(), nil
}

// Validate checks the single-block invariant, that no string field holds a NUL byte and that every
// directory entry lies inside the payload.
// Encode relies on directory ranges being unchanged; a payload whose contents were resized needs
// every entry offset recomputed before it can be encoded.
func (b *Bundle) Validate() error {
	if len(b.Blocks) != 1 {
		return fmt.Errorf("%w: found %d", ErrMultipleBlocks, len(b.Blocks))
	}

	for name, value := range map[string]string{
		"signature":      b.Signature,
		"unity version":  b.UnityVersion,
		"unity revision": b.UnityRevision,
	} {
		if strings.ContainsRune(value, 0) {
			return fmt.Errorf("%w: %s %q contains a NUL byte", ErrInvalidData, name, value)
		}
	}

	payloadSize := uint64(len(b.Payload))
	for _, entry := range b.Directory {
		if strings.ContainsRune(entry.Path, 0) {
			return fmt.Errorf("%w: entry path %q contains a NUL byte", ErrInvalidData, entry.Path)
		}
		end := entry.Offset + entry.Size
		if end < entry.Offset || end > payloadSize {
			return fmt.Errorf("%w: entry %q range [%d, %d) outside payload of %d bytes",
				ErrInvalidData, entry.Path, entry.Offset, end, payloadSize)
		}
	}

	return nil
}

// File returns the bytes of the directory entry with the given path
func (b *Bundle) File(path string) ([]byte, error) {
	for _, entry := range b.Directory {
		if entry.Path != path {
			continue
		}

		end := entry.Offset + entry.Size
		if end < entry.Offset || end > uint64(len(b.Payload)) {
			return nil, fmt.Errorf("%w: entry %q outside payload", ErrInvalidData, path)
		}
		return b.Payload[entry.Offset:end], nil
	}

	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
}

// ListFiles returns all directory paths sorted
func (b *Bundle) ListFiles() []string {
	files := make([]string, len(b.Directory))
	for i, entry := range b.Directory {
		files[i] = entry.Path
	}
	sort.Strings(files)
	return files
}
