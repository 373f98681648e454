package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var stepsUpdateToVersion string

var stepsUpdateCmd = &cobra.Command{
	Use:   "update <uri>",
	Short: "Clone a step to a new version",
	Long:  "Copies the step's files into a new version directory and appends a DAG entry with dependencies bumped to their latest versions. Refuses to overwrite existing files or entries.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toVersion := stepsUpdateToVersion
		if toVersion == "" {
			toVersion = time.Now().UTC().Format("2006-01-02")
		}

		updater, err := newUpdater()
		if err != nil {
			return err
		}

		newURI, err := updater.UpdateStep(args[0], toVersion)
		if err != nil {
			return eris.Wrapf(err, "update step %s", args[0])
		}

		zap.L().Info("step update planned",
			zap.String("from", args[0]),
			zap.String("to", newURI),
		)
		cmd.Println(newURI)
		return nil
	},
}

func init() {
	stepsUpdateCmd.Flags().StringVar(&stepsUpdateToVersion, "to-version", "", "target version (default: today)")
	stepsCmd.AddCommand(stepsUpdateCmd)
}
