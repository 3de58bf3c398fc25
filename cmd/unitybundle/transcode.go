package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/unitybundle/internal/transcode"
	"github.com/jchantrell/unitybundle/internal/utils"
)

var outDir string

var transcodeCmd = &cobra.Command{
	Use:   "transcode <input> <output> | --out-dir DIR <inputs...>",
	Short: "Re-encode bundles with a different payload codec",
	Long: `Transcode decodes each bundle, switches its payload block to the configured codec
(LZMA by default) and writes the re-encoded bundle.

With two arguments the first bundle is written to the second path, which may be the
input itself. With --out-dir every input file, and every file below each input
directory, is written to the output directory keeping its relative path.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if outDir == "" && len(args) != 2 {
			return fmt.Errorf("expected <input> <output>, or --out-dir with one or more inputs")
		}
		if outDir != "" && len(args) == 0 {
			return fmt.Errorf("expected at least one input with --out-dir")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		opts, err := transcodeOptions()
		if err != nil {
			return err
		}

		if outDir == "" {
			result, err := transcode.File(ctx, args[0], args[1], opts)
			if err != nil {
				return err
			}
			logResult(result)
			return nil
		}

		jobs, err := collectJobs(args, outDir)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			slog.Info("No bundles found")
			return nil
		}

		slog.Info("Transcoding bundles",
			"count", len(jobs),
			"compression", opts.Compression,
			"workers", cfg.Workers,
			"out_dir", outDir)

		start := time.Now()
		progress := utils.NewProgress(len(jobs), !noProgress)
		results, batchErr := transcode.Batch(ctx, jobs, opts, cfg.Workers, func(r *transcode.Result) {
			progress.Increment(filepath.Base(r.Input))
		})
		progress.Finish()

		var failed int
		var inSize, outSize uint64
		for _, r := range results {
			if r.Err != nil {
				failed++
				continue
			}
			inSize += uint64(r.InputSize)
			outSize += uint64(r.OutputSize)
			if !progress.Enabled() {
				logResult(r)
			}
		}

		slog.Info("Transcode complete",
			"bundles", utils.Number(int64(len(jobs)-failed)),
			"failed", failed,
			"input", utils.Bytes(inSize),
			"output", utils.Bytes(outSize),
			"ratio", utils.Ratio(outSize, inSize),
			"duration", utils.Duration(time.Since(start)))

		if batchErr != nil {
			return fmt.Errorf("%d of %d bundles failed: %w", failed, len(jobs), batchErr)
		}
		return nil
	},
}

func transcodeOptions() (transcode.Options, error) {
	compression, err := cfg.BlockCompression()
	if err != nil {
		return transcode.Options{}, err
	}
	sizeLimits, err := cfg.SizeLimits()
	if err != nil {
		return transcode.Options{}, err
	}
	return transcode.Options{Compression: compression, Limits: sizeLimits}, nil
}

func logResult(r *transcode.Result) {
	slog.Info("Bundle transcoded",
		"input", r.Input,
		"output", r.Output,
		"size", utils.Bytes(uint64(r.InputSize)),
		"transcoded", utils.Bytes(uint64(r.OutputSize)),
		"ratio", utils.Ratio(uint64(r.OutputSize), uint64(r.InputSize)),
		"duration", utils.Duration(r.Duration))
}

// collectJobs maps every input file, and every regular file below an input directory,
// to its output path in dir. Two inputs mapping to the same output is an error.
func collectJobs(inputs []string, dir string) ([]transcode.Job, error) {
	var jobs []transcode.Job
	seen := make(map[string]string)

	add := func(input, rel string) error {
		output := filepath.Join(dir, rel)
		if prev, ok := seen[output]; ok {
			return fmt.Errorf("%s and %s both map to %s", prev, input, output)
		}
		seen[output] = input
		jobs = append(jobs, transcode.Job{Input: input, Output: output})
		return nil
	}

	if err := walkInputs(inputs, add); err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	return jobs, nil
}

func init() {
	rootCmd.AddCommand(transcodeCmd)
	transcodeCmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "write transcoded bundles to this directory")
}
