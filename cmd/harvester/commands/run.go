package commands

import (
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/jobs"
	"github.com/maltedev/basket-harvester/internal/profile"
	"github.com/maltedev/basket-harvester/internal/queue"
	"github.com/spf13/cobra"
)

var runFlags struct {
	profile     string
	profileFile string
	pages       int
	out         string
	headless    bool
	db          bool
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.profile, "profile", "", "builtin profile name (default HARVEST_PROFILE)")
	f.StringVar(&runFlags.profileFile, "profile-file", "", "YAML profile file, overrides --profile")
	f.IntVar(&runFlags.pages, "pages", 0, "maximum pages to visit (default HARVEST_MAX_PAGES)")
	f.StringVar(&runFlags.out, "out", "", "CSV artifact path (default <profile>.csv)")
	f.BoolVar(&runFlags.headless, "headless", true, "run the browser without a window")
	f.BoolVar(&runFlags.db, "db", false, "also store the harvest in Postgres")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvests one profile and writes its listings to CSV.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("profile") {
			cfg.Harvest.Profile = runFlags.profile
		}
		if flags.Changed("profile-file") {
			cfg.Harvest.ProfileFile = runFlags.profileFile
		}
		if flags.Changed("pages") {
			cfg.Harvest.MaxPages = runFlags.pages
		}
		if flags.Changed("out") {
			cfg.Harvest.Output = runFlags.out
		}
		if flags.Changed("headless") {
			cfg.Browser.Headless = runFlags.headless
		}
		if flags.Changed("db") {
			cfg.Database.Enabled = runFlags.db
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		p, err := profile.Resolve(cfg.Harvest.Profile, cfg.Harvest.ProfileFile)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		var db *database.DB
		if cfg.Database.Enabled {
			db, err = openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
		}

		task := queue.NewTask(p.Name, 0, cfg.OutputPath(p.Name))
		task.ProfileFile = cfg.Harvest.ProfileFile

		runner := jobs.NewHarvestRunner(cfg.ScraperOptions(), cfg.Harvest.OutputDir, db, log)
		run, err := runner.Run(ctx, task)
		if run != nil {
			renderRunSummary(cmd.OutOrStdout(), run)
		}
		return err
	},
}
