package bundle

import (
	"fmt"
	"strings"
)

// Platform names a distribution target with its own bundle size limits
type Platform string

const (
	PlatformNone    Platform = ""
	PlatformPC      Platform = "pc"
	PlatformAndroid Platform = "android"
)

const (
	PCCompressedSizeLimit        = 200 * 1024 * 1024
	PCUncompressedSizeLimit      = 500 * 1024 * 1024
	AndroidCompressedSizeLimit   = 10 * 1024 * 1024
	AndroidUncompressedSizeLimit = 40 * 1024 * 1024
)

// Limits caps the payload sizes a bundle may declare. Zero means unlimited.
type Limits struct {
	MaxCompressedSize   uint64
	MaxUncompressedSize uint64
}

// LimitsFor returns the limits of a platform. PlatformNone has no limits.
func LimitsFor(p Platform) (Limits, error) {
	switch Platform(strings.ToLower(string(p))) {
	case PlatformNone:
		return Limits{}, nil
	case PlatformPC:
		return Limits{
			MaxCompressedSize:   PCCompressedSizeLimit,
			MaxUncompressedSize: PCUncompressedSizeLimit,
		}, nil
	case PlatformAndroid:
		return Limits{
			MaxCompressedSize:   AndroidCompressedSizeLimit,
			MaxUncompressedSize: AndroidUncompressedSizeLimit,
		}, nil
	default:
		return Limits{}, fmt.Errorf("unknown platform %q: supported platforms are pc, android", p)
	}
}

func (l Limits) checkCompressed(what string, size uint64) error {
	if l.MaxCompressedSize > 0 && size > l.MaxCompressedSize {
		return fmt.Errorf("%w: %s compressed size %d > %d", ErrSizeLimit, what, size, l.MaxCompressedSize)
	}
	return nil
}

func (l Limits) checkUncompressed(what string, size uint64) error {
	if l.MaxUncompressedSize > 0 && size > l.MaxUncompressedSize {
		return fmt.Errorf("%w: %s uncompressed size %d > %d", ErrSizeLimit, what, size, l.MaxUncompressedSize)
	}
	return nil
}
