package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Maintain the reference catalog",
}

var (
	catalogRegionsFile string
	catalogIncomeFile  string
	catalogPopFile     string
)

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load reference tables into the catalog",
	Long:  "Imports regions, income groups, and population from JSON files into the sqlite reference catalog, creating the schema if needed. Existing rows are replaced.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if catalogRegionsFile == "" && catalogIncomeFile == "" && catalogPopFile == "" {
			return eris.New("nothing to import, pass --regions, --income-groups, or --population")
		}

		cat, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		if err := cat.EnsureSchema(ctx); err != nil {
			return err
		}

		if catalogRegionsFile != "" {
			var recs []catalog.RegionRecord
			if err := decodeJSONFile(catalogRegionsFile, &recs); err != nil {
				return err
			}
			for _, rec := range recs {
				if err := cat.InsertRegion(ctx, rec); err != nil {
					return err
				}
			}
			zap.L().Info("regions imported", zap.Int("count", len(recs)))
		}

		if catalogIncomeFile != "" {
			var recs []catalog.IncomeGroupRecord
			if err := decodeJSONFile(catalogIncomeFile, &recs); err != nil {
				return err
			}
			for _, rec := range recs {
				if err := cat.InsertIncomeGroup(ctx, rec); err != nil {
					return err
				}
			}
			zap.L().Info("income groups imported", zap.Int("count", len(recs)))
		}

		if catalogPopFile != "" {
			var recs []catalog.PopulationRecord
			if err := decodeJSONFile(catalogPopFile, &recs); err != nil {
				return err
			}
			for _, rec := range recs {
				if err := cat.InsertPopulation(ctx, rec); err != nil {
					return err
				}
			}
			zap.L().Info("population imported", zap.Int("count", len(recs)))
		}

		return nil
	},
}

func decodeJSONFile(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrapf(err, "decode %s", path)
	}
	return nil
}

func init() {
	catalogImportCmd.Flags().StringVar(&catalogRegionsFile, "regions", "", "JSON array of region records")
	catalogImportCmd.Flags().StringVar(&catalogIncomeFile, "income-groups", "", "JSON array of income group records")
	catalogImportCmd.Flags().StringVar(&catalogPopFile, "population", "", "JSON array of population records")
	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}
