package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/unitybundle/internal/bundle"
	"github.com/jchantrell/unitybundle/internal/database"
	"github.com/jchantrell/unitybundle/internal/utils"
)

var (
	catalogList bool
	catalogFind string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [inputs...]",
	Short: "Index bundle directories into the SQLite catalog",
	Long: `Catalog decodes every input bundle, and every file below each input directory,
and records its header and directory entries in the catalog database. Indexing a
bundle again replaces its previous rows. Files that are not UnityFS bundles are skipped.

Use --list to print the indexed bundles, or --find to locate the bundles that contain
a virtual file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		db, err := database.NewDatabase(ctx, database.DefaultDatabaseOptions(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		switch {
		case catalogList:
			return listCatalog(ctx, db)
		case catalogFind != "":
			return findInCatalog(ctx, db, catalogFind)
		case len(args) == 0:
			return fmt.Errorf("no inputs provided, use --list to show indexed bundles")
		}

		var paths []string
		if err := walkInputs(args, func(path, _ string) error {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			paths = append(paths, abs)
			return nil
		}); err != nil {
			return err
		}

		return indexBundles(ctx, db, paths)
	},
}

// indexBundles decodes paths on the worker pool and records each one in the catalog
func indexBundles(ctx context.Context, db *database.Database, paths []string) error {
	sizeLimits, err := cfg.SizeLimits()
	if err != nil {
		return err
	}

	start := time.Now()
	progress := utils.NewProgress(len(paths), !noProgress)

	var indexed, skipped, entries atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, path := range paths {
		g.Go(func() error {
			defer progress.Increment(filepath.Base(path))

			b, err := bundle.DecodeFile(path, &bundle.DecoderOptions{Limits: sizeLimits})
			if errors.Is(err, bundle.ErrUnsupportedBundle) {
				slog.Debug("Skipping non-UnityFS file", "path", path)
				skipped.Add(1)
				return nil
			}
			if err != nil {
				slog.Warn("Skipping unreadable bundle", "path", path, "error", err)
				skipped.Add(1)
				return nil
			}

			if _, err := db.IndexBundle(ctx, path, b); err != nil {
				return fmt.Errorf("indexing %s: %w", path, err)
			}
			indexed.Add(1)
			entries.Add(int64(len(b.Directory)))
			return nil
		})
	}

	err = g.Wait()
	progress.Finish()
	if err != nil {
		return err
	}

	slog.Info("Catalog updated",
		"database", db.Path(),
		"bundles", utils.Number(indexed.Load()),
		"entries", utils.Number(entries.Load()),
		"skipped", skipped.Load(),
		"duration", utils.Duration(time.Since(start)))

	return nil
}

func listCatalog(ctx context.Context, db *database.Database) error {
	records, err := db.Bundles(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-8s %-12s %-12s %-8s %s\n", "Codec", "Size", "Payload", "Entries", "Path")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range records {
		fmt.Printf("%-8s %-12s %-12s %-8d %s\n", r.BlockCompression, utils.Bytes(r.Size), utils.Bytes(r.PayloadSize), r.Entries, r.Path)
	}
	return nil
}

func findInCatalog(ctx context.Context, db *database.Database, entryPath string) error {
	locations, err := db.FindEntries(ctx, entryPath)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		return fmt.Errorf("%s is not in any indexed bundle", entryPath)
	}

	for _, l := range locations {
		fmt.Printf("%s\toffset=%d\tsize=%d\tflags=%d\n", l.BundlePath, l.Offset, l.Size, l.Flags)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().BoolVar(&catalogList, "list", false, "list indexed bundles")
	catalogCmd.Flags().StringVar(&catalogFind, "find", "", "list the bundles containing this virtual file")
}
