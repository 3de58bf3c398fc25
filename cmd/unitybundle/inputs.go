package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// walkInputs calls fn for every input file and every regular file below an input directory.
// rel is the file name for file inputs and the directory name joined with the relative path
// for files found in a directory.
func walkInputs(inputs []string, fn func(path, rel string) error) error {
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		if !info.IsDir() {
			if err := fn(input, filepath.Base(input)); err != nil {
				return err
			}
			continue
		}

		root := filepath.Clean(input)
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			return fn(path, filepath.Join(filepath.Base(root), rel))
		})
		if err != nil {
			return fmt.Errorf("walking %s: %w", input, err)
		}
	}

	return nil
}
