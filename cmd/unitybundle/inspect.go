package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/unitybundle/internal/bundle"
	"github.com/jchantrell/unitybundle/internal/utils"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <bundle>",
	Short: "Print a bundle's header, block table and directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sizeLimits, err := cfg.SizeLimits()
		if err != nil {
			return err
		}

		b, err := bundle.InspectFile(args[0], &bundle.DecoderOptions{Limits: sizeLimits})
		if err != nil {
			return err
		}

		printBundle(os.Stdout, args[0], b)
		return nil
	},
}

func printBundle(w io.Writer, path string, b *bundle.Bundle) {
	fmt.Fprintf(w, "Bundle: %s\n", path)
	fmt.Fprintf(w, "  %-22s %s\n", "Signature", b.Signature)
	fmt.Fprintf(w, "  %-22s %d\n", "Version", b.Version)
	fmt.Fprintf(w, "  %-22s %s\n", "Unity version", b.UnityVersion)
	fmt.Fprintf(w, "  %-22s %s\n", "Unity revision", b.UnityRevision)
	fmt.Fprintf(w, "  %-22s %s (%s bytes)\n", "Size", utils.Bytes(b.Size), utils.Number(int64(b.Size)))
	fmt.Fprintf(w, "  %-22s 0x%X\n", "Flags", uint32(b.Flags))
	fmt.Fprintf(w, "  %-22s %s\n", "Blocks info codec", b.Flags.Compression())
	fmt.Fprintf(w, "  %-22s %s / %s\n", "Blocks info size",
		utils.Bytes(uint64(b.CompressedBlocksInfoSize)), utils.Bytes(uint64(b.UncompressedBlocksInfoSize)))
	fmt.Fprintf(w, "  %-22s %v\n", "Blocks info at end", b.Flags.Has(bundle.FlagBlocksInfoAtEnd))
	if _, err := b.BlockCompression(); err != nil {
		fmt.Fprintf(w, "  %-22s %v\n", "Not transcodable", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-6s %-12s %-14s %-14s %-8s\n", "Block", "Codec", "Compressed", "Uncompressed", "Flags")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for i, block := range b.Blocks {
		fmt.Fprintf(w, "%-6d %-12s %-14s %-14s 0x%04X\n", i, block.Compression(),
			utils.Number(int64(block.CompressedSize)), utils.Number(int64(block.UncompressedSize)), block.Flags)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-14s %-14s %-6s %s\n", "Offset", "Size", "Flags", "Path")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, entry := range b.Directory {
		fmt.Fprintf(w, "%-14d %-14d %-6d %s\n", entry.Offset, entry.Size, entry.Flags, entry.Path)
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
