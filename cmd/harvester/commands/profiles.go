package commands

import (
	"github.com/maltedev/basket-harvester/internal/profile"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(profilesCmd)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Lists the embedded site profiles.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var profiles []*profile.Profile
		for _, name := range profile.Names() {
			p, err := profile.Builtin(name)
			if err != nil {
				return err
			}
			profiles = append(profiles, p)
		}

		renderProfiles(cmd.OutOrStdout(), profiles)
		return nil
	},
}
