package cmd

import (
	"github.com/spf13/cobra"

	"github.com/macfreek/game-db-manager/internal/recon"
)

var findMissingSteamIDsCmd = &cobra.Command{
	Use:   "find-missing-steamids",
	Short: "Find and store missing Steam IDs for games in the database available on Steam",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		r, err := reconciler(true, false)
		if err != nil {
			return err
		}
		defer r.DB.Close()
		return r.FillSteamIDs(recon.FillSteamIDsOptions{})
	},
}

var findAllSteamIDsCmd = &cobra.Command{
	Use:   "find-all-steamids",
	Short: "Suggest missing Steam IDs for all games in the database",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		r, err := reconciler(true, false)
		if err != nil {
			return err
		}
		defer r.DB.Close()
		// Suggestions only: consider every game, require exact names, and
		// never write.
		r.DryRun = true
		return r.FillSteamIDs(recon.FillSteamIDsOptions{AllGames: true, Strict: true})
	},
}

var verifySteamIDsCmd = &cobra.Command{
	Use:   "verify-steamids",
	Short: "List discrepancies between the database and Steam for owned games",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		r, err := reconciler(true, false)
		if err != nil {
			return err
		}
		defer r.DB.Close()
		return r.VerifySteamIDs()
	},
}

var addSteamImagesCmd = &cobra.Command{
	Use:   "add-steam-images",
	Short: "Add missing images from Steam",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		r, err := reconciler(true, false)
		if err != nil {
			return err
		}
		defer r.DB.Close()
		return r.AddSteamImages()
	},
}

func init() {
	rootCmd.AddCommand(findMissingSteamIDsCmd)
	rootCmd.AddCommand(findAllSteamIDsCmd)
	rootCmd.AddCommand(verifySteamIDsCmd)
	rootCmd.AddCommand(addSteamImagesCmd)
}
