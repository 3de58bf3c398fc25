package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jchantrell/unitybundle/internal/bundle"
)

var extractCmd = &cobra.Command{
	Use:   "extract <bundle> <dir>",
	Short: "Write the virtual files of a bundle to a directory",
	Long: `Extract decodes a bundle and writes every directory entry below dir. Entries
whose paths are absolute or escape dir are refused and nothing is written.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sizeLimits, err := cfg.SizeLimits()
		if err != nil {
			return err
		}

		b, err := bundle.DecodeFile(args[0], &bundle.DecoderOptions{Limits: sizeLimits})
		if err != nil {
			return err
		}

		n, err := b.Extract(args[1])
		if err != nil {
			return err
		}

		slog.Info("Bundle extracted", "bundle", args[0], "dir", args[1], "files", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
