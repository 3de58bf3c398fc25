package bundle

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Extract writes every directory entry below dir and returns the number of files written.
// Entry paths that are absolute or climb out of dir are rejected before anything is written.
func (b *Bundle) Extract(dir string) (int, error) {
	paths := make([]string, len(b.Directory))
	for i, entry := range b.Directory {
		rel, err := normalizeEntryPath(entry.Path)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", err, entry.Path)
		}
		paths[i] = filepath.Join(dir, filepath.FromSlash(rel))
	}

	for i, entry := range b.Directory {
		end := entry.Offset + entry.Size
		if end < entry.Offset || end > uint64(len(b.Payload)) {
			return i, fmt.Errorf("%w: entry %q outside payload", ErrInvalidData, entry.Path)
		}
		data := b.Payload[entry.Offset:end]

		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			return i, fmt.Errorf("creating directory for %s: %w", entry.Path, err)
		}
		if err := os.WriteFile(paths[i], data, 0o644); err != nil {
			return i, fmt.Errorf("writing %s: %w", entry.Path, err)
		}

		slog.Debug("Entry extracted", "path", entry.Path, "size", entry.Size)
	}

	return len(b.Directory), nil
}

// normalizeEntryPath turns an entry path into a clean relative slash path
func normalizeEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" || strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if len(raw) >= 2 && isASCIIAlpha(raw[0]) && raw[1] == ':' {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			clean = append(clean, part)
		}
	}
	if len(clean) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(clean, `/`), nil
}

func isASCIIAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
