package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/geo"
	"github.com/datagarden/etl-cli/internal/tabular"
)

var (
	harmonizeOutput        string
	harmonizeExcluded      string
	harmonizeCountryCol    string
	harmonizeYearCol       string
	harmonizeSheet         string
	harmonizeDims          []string
	harmonizeMakeNull      bool
	harmonizeWarnOnUnused  bool
	harmonizeNoWarnMissing bool
)

var harmonizeCmd = &cobra.Command{
	Use:   "harmonize <input> <countries.json>",
	Short: "Harmonize country names in a table",
	Long:  "Replaces raw country names with canonical ones using a JSON mapping file, dropping excluded countries and reporting unmapped names.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, countriesFile := args[0], args[1]

		regions, _, err := loadRegions(cmd.Context())
		if err != nil {
			return err
		}

		tb, err := readTable(input, tabular.ReadOptions{
			EntityCol: countryColumn(harmonizeCountryCol),
			YearCol:   yearColumn(harmonizeYearCol),
			DimCols:   harmonizeDims,
			SheetName: harmonizeSheet,
		})
		if err != nil {
			return err
		}

		opts := geo.DefaultHarmonizeOptions(countriesFile)
		opts.ExcludedCountriesFile = harmonizeExcluded
		opts.MakeMissingNull = harmonizeMakeNull
		opts.WarnOnUnusedCountries = harmonizeWarnOnUnused
		if harmonizeNoWarnMissing {
			opts.WarnOnMissingCountries = false
		}

		out, err := regions.HarmonizeNames(tb, opts)
		if err != nil {
			return err
		}

		written, err := writeTable(out, input, harmonizeOutput, ".harmonized")
		if err != nil {
			return err
		}

		zap.L().Info("table harmonized",
			zap.String("input", input),
			zap.String("output", written),
			zap.Int("rows", len(out.Rows)),
		)
		return nil
	},
}

func countryColumn(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Pipeline.CountryColumn
}

func yearColumn(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Pipeline.YearColumn
}

func init() {
	harmonizeCmd.Flags().StringVarP(&harmonizeOutput, "output", "o", "", "output CSV path (default: <input>.harmonized.csv)")
	harmonizeCmd.Flags().StringVar(&harmonizeExcluded, "excluded", "", "JSON array of raw country names to drop")
	harmonizeCmd.Flags().StringVar(&harmonizeCountryCol, "country-column", "", "country column name (default from config)")
	harmonizeCmd.Flags().StringVar(&harmonizeYearCol, "year-column", "", "year column name (default from config)")
	harmonizeCmd.Flags().StringVar(&harmonizeSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	harmonizeCmd.Flags().StringSliceVar(&harmonizeDims, "dims", nil, "extra dimension columns")
	harmonizeCmd.Flags().BoolVar(&harmonizeMakeNull, "drop-unmapped", false, "drop rows whose country has no mapping entry")
	harmonizeCmd.Flags().BoolVar(&harmonizeWarnOnUnused, "warn-unused", false, "warn about mapping entries never matched")
	harmonizeCmd.Flags().BoolVar(&harmonizeNoWarnMissing, "no-warn-missing", false, "suppress warnings about unmapped names")
	rootCmd.AddCommand(harmonizeCmd)
}
