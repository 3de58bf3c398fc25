package bundle

import "errors"

// Errors returned by the decoder and encoder. Use errors.Is in callers.
var (
	// ErrUnsupportedBundle means the file does not start with the UnityFS signature
	ErrUnsupportedBundle = errors.New("unsupported bundle type")
	// ErrMultipleBlocks means the bundle does not have exactly one block
	ErrMultipleBlocks = errors.New("bundle must contain exactly one block")
	// ErrInvalidData means a table or range in the bundle is malformed
	ErrInvalidData = errors.New("invalid bundle data")
	// ErrDecompress means a block could not be decompressed
	ErrDecompress = errors.New("decompress error")
	// ErrUnsupportedCompression means the codec cannot be used for compression
	ErrUnsupportedCompression = errors.New("unsupported compression")
	// ErrSizeLimit means a declared size exceeds the configured limits
	ErrSizeLimit = errors.New("size exceeds limit")
	// ErrEntryNotFound means the path is not in the directory
	ErrEntryNotFound = errors.New("file not in directory")
	// ErrInvalidExtractPath means an entry path would be written outside the target directory
	ErrInvalidExtractPath = errors.New("invalid extract path")
)
