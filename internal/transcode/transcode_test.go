package transcode

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/unitybundle/internal/bundle"
)

func writeBundle(t *testing.T, dir, name string, c bundle.Compression) string {
	t.Helper()

	payload := bytes.Repeat([]byte("m_Name m_GameObject m_Script "), 512)
	b := &bundle.Bundle{
		Signature:     bundle.Signature,
		Version:       7,
		UnityVersion:  "5.x.x",
		UnityRevision: "2021.3.8f1",
		Flags:         bundle.FlagBlockInfoNeedPaddingAtStart | bundle.ArchiveFlags(bundle.CompressionLZ4HC),
		Blocks:        []bundle.Block{{Flags: 0x40 | uint16(c)}},
		Directory: []bundle.DirectoryEntry{
			{Offset: 0, Size: uint64(len(payload)), Flags: 4, Path: "CAB-" + name},
		},
		Payload: payload,
	}

	path := filepath.Join(dir, name+".bundle")
	require.NoError(t, bundle.EncodeFile(b, path, nil))
	return path
}

func TestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeBundle(t, dir, "level0", bundle.CompressionLZ4)
	out := filepath.Join(dir, "out", "level0.bundle")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))

	result, err := File(context.Background(), in, out, Options{Compression: bundle.CompressionLZMA})
	require.NoError(t, err)
	assert.Equal(t, in, result.Input)
	assert.Equal(t, out, result.Output)
	assert.Positive(t, result.InputSize)
	assert.Positive(t, result.OutputSize)
	assert.Equal(t, 29*512, result.PayloadSize)

	original, err := bundle.DecodeFile(in, nil)
	require.NoError(t, err)
	transcoded, err := bundle.DecodeFile(out, nil)
	require.NoError(t, err)

	assert.Equal(t, bundle.CompressionLZMA, transcoded.Blocks[0].Compression())
	assert.Equal(t, uint16(0x40), transcoded.Blocks[0].Flags&0x40)
	assert.Equal(t, original.Payload, transcoded.Payload)
	assert.Equal(t, original.Directory, transcoded.Directory)
	assert.Equal(t, original.Flags, transcoded.Flags)
}

func TestFileInPlace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeBundle(t, dir, "level0", bundle.CompressionNone)

	_, err := File(context.Background(), path, path, Options{Compression: bundle.CompressionLZ4HC})
	require.NoError(t, err)

	b, err := bundle.DecodeFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, bundle.CompressionLZ4HC, b.Blocks[0].Compression())
}

func TestFileRejectsZstdTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeBundle(t, dir, "level0", bundle.CompressionNone)

	_, err := File(context.Background(), in, filepath.Join(dir, "out.bundle"), Options{Compression: bundle.CompressionZstd})
	assert.ErrorIs(t, err, bundle.ErrUnsupportedCompression)
	assert.NoFileExists(t, filepath.Join(dir, "out.bundle"))
}

func TestFileLimits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeBundle(t, dir, "level0", bundle.CompressionNone)

	_, err := File(context.Background(), in, filepath.Join(dir, "out.bundle"), Options{
		Compression: bundle.CompressionLZMA,
		Limits:      bundle.Limits{MaxUncompressedSize: 1024},
	})
	assert.ErrorIs(t, err, bundle.ErrSizeLimit)
}

func TestFileCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := File(ctx, "in.bundle", "out.bundle", Options{Compression: bundle.CompressionLZMA})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	var jobs []Job
	for _, name := range []string{"a", "b", "c", "d"} {
		jobs = append(jobs, Job{
			Input:  writeBundle(t, dir, name, bundle.CompressionLZ4),
			Output: filepath.Join(outDir, name+".bundle"),
		})
	}

	garbage := filepath.Join(dir, "garbage.bundle")
	require.NoError(t, os.WriteFile(garbage, []byte("not a bundle"), 0o644))
	jobs = append(jobs, Job{Input: garbage, Output: filepath.Join(outDir, "garbage.bundle")})

	var done atomic.Int32
	results, err := Batch(context.Background(), jobs, Options{Compression: bundle.CompressionLZMA}, 2, func(*Result) {
		done.Add(1)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, bundle.ErrUnsupportedBundle)
	assert.Equal(t, int32(len(jobs)), done.Load())
	require.Len(t, results, len(jobs))

	for i, r := range results[:4] {
		require.NoError(t, r.Err)
		assert.Equal(t, jobs[i].Output, r.Output)

		b, err := bundle.DecodeFile(r.Output, nil)
		require.NoError(t, err)
		assert.Equal(t, bundle.CompressionLZMA, b.Blocks[0].Compression())
	}
	assert.ErrorIs(t, results[4].Err, bundle.ErrUnsupportedBundle)
	assert.NoFileExists(t, filepath.Join(outDir, "garbage.bundle"))
}

func TestBatchCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jobs := []Job{{
		Input:  writeBundle(t, dir, "a", bundle.CompressionNone),
		Output: filepath.Join(dir, "a.out.bundle"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := Batch(ctx, jobs, Options{Compression: bundle.CompressionLZMA}, 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.NoFileExists(t, jobs[0].Output)
}
