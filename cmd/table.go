package main

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/datagarden/etl-cli/internal/tabular"
)

// readTable loads a CSV or XLSX input file based on its extension.
func readTable(path string, opts tabular.ReadOptions) (*tabular.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return tabular.ReadCSV(path, opts)
	case ".xlsx":
		return tabular.ReadXLSX(path, opts)
	default:
		return nil, eris.Errorf("unsupported input format %q, want .csv or .xlsx", filepath.Ext(path))
	}
}

// writeTable writes the result to the output path, or next to the input
// with a suffix when no output path is given.
func writeTable(tb *tabular.Table, inputPath, outputPath, suffix string) (string, error) {
	if outputPath == "" {
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + suffix + ".csv"
	}
	if err := tabular.WriteCSV(tb, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
