package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/geo"
	"github.com/datagarden/etl-cli/internal/tabular"
)

var (
	aggregateOutput     string
	aggregateRegions    []string
	aggregateColumns    []string
	aggregateReducer    string
	aggregateCountryCol string
	aggregateYearCol    string
	aggregateSheet      string
	aggregateDims       []string
	aggregatePerCapita  []string
	aggregateNoOverlaps bool
	aggregateKeepSuffix string
	aggregateNumNaNs    int
	aggregateFracNaNs   float64
	aggregateMinValues  int
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <input>",
	Short: "Add region aggregate rows to a table",
	Long:  "Sums or averages member-country values into region rows (continents, income groups), with per-column missing-value policies and optional per-capita columns.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		if len(aggregateRegions) == 0 {
			return eris.New("at least one --region is required")
		}
		if len(aggregateColumns) == 0 {
			return eris.New("at least one --column is required")
		}

		regions, population, err := loadRegions(cmd.Context())
		if err != nil {
			return err
		}

		tb, err := readTable(input, tabular.ReadOptions{
			EntityCol: countryColumn(aggregateCountryCol),
			YearCol:   yearColumn(aggregateYearCol),
			DimCols:   aggregateDims,
			SheetName: aggregateSheet,
		})
		if err != nil {
			return err
		}

		rawAggs := make(map[string]string, len(aggregateColumns))
		for _, col := range aggregateColumns {
			name, reducer, ok := strings.Cut(col, "=")
			if !ok {
				reducer = aggregateReducer
			}
			rawAggs[name] = reducer
		}
		aggregations, err := geo.ParseReducers(rawAggs)
		if err != nil {
			return err
		}

		aggOpts := geo.DefaultAggregateOptions()
		aggOpts.CheckForRegionOverlaps = !aggregateNoOverlaps
		aggOpts.KeepOriginalRegionWithSuffix = aggregateKeepSuffix
		if cmd.Flags().Changed("num-allowed-nans") {
			aggOpts.NumAllowedNaNsPerYear = &aggregateNumNaNs
		}
		if cmd.Flags().Changed("frac-allowed-nans") {
			aggOpts.FracAllowedNaNsPerYear = &aggregateFracNaNs
		}
		if cmd.Flags().Changed("min-values") {
			aggOpts.MinNumValuesPerYear = &aggregateMinValues
		}

		opts := geo.AddRegionsOptions{
			Aggregator: geo.AggregatorOptions{
				Specs:        geo.SpecsForNames(aggregateRegions),
				Aggregations: aggregations,
				Population:   population,
			},
			Aggregate: aggOpts,
		}
		if len(aggregatePerCapita) > 0 {
			pc := geo.DefaultPerCapitaOptions(aggregatePerCapita...)
			opts.PerCapita = &pc
		}

		out, err := geo.AddRegionsToTable(regions, tb, opts)
		if err != nil {
			return err
		}

		written, err := writeTable(out, input, aggregateOutput, ".aggregated")
		if err != nil {
			return err
		}

		zap.L().Info("region aggregates added",
			zap.String("input", input),
			zap.String("output", written),
			zap.Strings("regions", aggregateRegions),
			zap.Int("rows", len(out.Rows)),
		)
		return nil
	},
}

func init() {
	aggregateCmd.Flags().StringVarP(&aggregateOutput, "output", "o", "", "output CSV path (default: <input>.aggregated.csv)")
	aggregateCmd.Flags().StringSliceVar(&aggregateRegions, "region", nil, "region to aggregate (repeatable)")
	aggregateCmd.Flags().StringSliceVar(&aggregateColumns, "column", nil, "metric column to aggregate, optionally col=sum or col=mean (repeatable)")
	aggregateCmd.Flags().StringVar(&aggregateReducer, "reducer", "sum", "default reducer for --column without an explicit one")
	aggregateCmd.Flags().StringVar(&aggregateCountryCol, "country-column", "", "country column name (default from config)")
	aggregateCmd.Flags().StringVar(&aggregateYearCol, "year-column", "", "year column name (default from config)")
	aggregateCmd.Flags().StringVar(&aggregateSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	aggregateCmd.Flags().StringSliceVar(&aggregateDims, "dims", nil, "extra dimension columns")
	aggregateCmd.Flags().StringSliceVar(&aggregatePerCapita, "per-capita", nil, "columns to add per-capita variants for")
	aggregateCmd.Flags().BoolVar(&aggregateNoOverlaps, "no-overlap-check", false, "skip historical-region overlap detection")
	aggregateCmd.Flags().StringVar(&aggregateKeepSuffix, "keep-original-suffix", "", "keep replaced region rows under region+suffix")
	aggregateCmd.Flags().IntVar(&aggregateNumNaNs, "num-allowed-nans", 0, "max missing member values tolerated per group")
	aggregateCmd.Flags().Float64Var(&aggregateFracNaNs, "frac-allowed-nans", 0, "max fraction of missing member values per group")
	aggregateCmd.Flags().IntVar(&aggregateMinValues, "min-values", 0, "min informed member values required per group")
	rootCmd.AddCommand(aggregateCmd)
}
