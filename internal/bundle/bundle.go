// Package bundle decodes and encodes UnityFS asset bundles.
//
// A bundle is a header, a compressed blocks-info segment describing the block table and the
// directory of virtual files, and the compressed payload. Only bundles with a single payload
// block are supported. The usual pipeline decodes a file, changes the block codec and encodes
// it again:
//
//	b, err := bundle.DecodeFile("in.bundle", nil)
//	if err != nil {
//		return err
//	}
//	b.RecompressToLZMA()
//	if err := bundle.EncodeFile(b, "out.bundle", nil); err != nil {
//		return err
//	}
package bundle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// DecodeBytes decodes a bundle held in memory
func DecodeBytes(data []byte, opts *DecoderOptions) (*Bundle, error) {
	return NewDecoder(bytes.NewReader(data), opts).Decode()
}

// EncodeBytes encodes b into memory
func EncodeBytes(b *Bundle, opts *EncoderOptions) ([]byte, error) {
	w := &writeBuffer{}
	if err := NewEncoder(w, opts).Encode(b); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeFile opens and decodes the bundle at path
func DecodeFile(path string, opts *DecoderOptions) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	defer f.Close()

	b, err := NewDecoder(f, opts).Decode()
	if err != nil {
		return nil, fmt.Errorf("decoding bundle %s: %w", path, err)
	}

	return b, nil
}

// InspectFile reads the header, block table and directory of the bundle at path.
// The payload is left empty and bundles with several blocks are accepted.
func InspectFile(path string, opts *DecoderOptions) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	defer f.Close()

	b, err := NewDecoder(f, opts).DecodeInfo()
	if err != nil {
		return nil, fmt.Errorf("inspecting bundle %s: %w", path, err)
	}

	return b, nil
}

// EncodeFile encodes b to path. The bundle is written to a temporary file in the same
// directory and renamed over path only once it is complete, so a failed encode never leaves
// a truncated bundle behind. path may be the file b was decoded from, and an existing
// destination keeps its permissions.
func EncodeFile(b *Bundle, path string, opts *EncoderOptions) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary bundle file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = NewEncoder(tmp, opts).Encode(b); err != nil {
		return fmt.Errorf("encoding bundle %s: %w", path, err)
	}
	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err = tmp.Chmod(mode); err != nil {
		return fmt.Errorf("setting bundle permissions: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing bundle file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing bundle file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing bundle %s: %w", path, err)
	}

	return nil
}
