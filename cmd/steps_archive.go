package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var stepsArchiveCmd = &cobra.Command{
	Use:   "archive <uri>",
	Short: "Move a step's DAG entry to the archive DAG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		updater, err := newUpdater()
		if err != nil {
			return err
		}

		if err := updater.ArchiveStep(args[0]); err != nil {
			return eris.Wrapf(err, "archive step %s", args[0])
		}

		zap.L().Info("step archived", zap.String("uri", args[0]))
		return nil
	},
}

func init() {
	stepsCmd.AddCommand(stepsArchiveCmd)
}
