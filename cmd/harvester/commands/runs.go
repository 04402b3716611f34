package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/spf13/cobra"
)

var runsLimit int

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to list")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Lists harvests stored in Postgres, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsLimit < 1 {
			return fmt.Errorf("--limit must be at least 1")
		}

		db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := database.NewHarvestRepository(db).ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		renderRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Shows one stored harvest and its listings.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}

		db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		repo := database.NewHarvestRepository(db)
		run, err := repo.GetRun(cmd.Context(), id)
		if err != nil {
			return err
		}

		listings, err := repo.ListListings(cmd.Context(), id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		renderRunSummary(out, run)
		renderListings(out, run.Columns, listings)
		return nil
	},
}
