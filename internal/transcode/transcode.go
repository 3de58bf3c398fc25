// Package transcode rewrites bundles with a different payload codec.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/unitybundle/internal/bundle"
)

// Options configures a transcode
type Options struct {
	// Compression is the codec written for the payload block
	Compression bundle.Compression

	// Limits applies to both the decoded input and the encoded output
	Limits bundle.Limits
}

// Job is one input bundle and where its transcoded copy goes
type Job struct {
	Input  string
	Output string
}

// Result describes a finished transcode. Err is set when the job failed.
type Result struct {
	Input       string
	Output      string
	InputSize   int64
	OutputSize  int64
	PayloadSize int
	Duration    time.Duration
	Err         error
}

// File decodes in, switches every block to the target codec and encodes it to out.
// in and out may be the same path.
func File(ctx context.Context, in, out string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Compression == bundle.CompressionZstd || !opts.Compression.Known() {
		return nil, fmt.Errorf("%w: cannot transcode to %s", bundle.ErrUnsupportedCompression, opts.Compression)
	}

	start := time.Now()

	info, err := os.Stat(in)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	b, err := bundle.DecodeFile(in, &bundle.DecoderOptions{Limits: opts.Limits})
	if err != nil {
		return nil, err
	}

	b.SetBlocksCompression(opts.Compression)

	if err := bundle.EncodeFile(b, out, &bundle.EncoderOptions{Limits: opts.Limits}); err != nil {
		return nil, err
	}

	outInfo, err := os.Stat(out)
	if err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}

	result := &Result{
		Input:       in,
		Output:      out,
		InputSize:   info.Size(),
		OutputSize:  outInfo.Size(),
		PayloadSize: len(b.Payload),
		Duration:    time.Since(start),
	}

	slog.Debug("Bundle transcoded",
		"input", in,
		"output", out,
		"compression", opts.Compression,
		"input_size", result.InputSize,
		"output_size", result.OutputSize,
		"duration", result.Duration)

	return result, nil
}

// Batch transcodes jobs on up to workers goroutines. A failed job does not stop the others;
// cancelling ctx stops jobs that have not started yet. Results are returned in job order and
// the error joins every failure. onDone, if not nil, is called from the worker goroutines as
// each job finishes.
func Batch(ctx context.Context, jobs []Job, opts Options, workers int, onDone func(*Result)) ([]*Result, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]*Result, len(jobs))

	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(workers)

	for i, job := range jobs {
		g.Go(func() error {
			result, err := File(ctx, job.Input, job.Output, opts)
			if err != nil {
				result = &Result{Input: job.Input, Output: job.Output, Err: err}

				mu.Lock()
				errs = append(errs, fmt.Errorf("transcoding %s: %w", job.Input, err))
				mu.Unlock()

				if !errors.Is(err, context.Canceled) {
					slog.Warn("Bundle transcode failed", "input", job.Input, "error", err)
				}
			}

			results[i] = result
			if onDone != nil {
				onDone(result)
			}
			return nil
		})
	}

	_ = g.Wait()

	return results, errors.Join(errs...)
}
