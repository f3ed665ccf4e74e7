package cmd

import (
	"github.com/spf13/cobra"

	"github.com/macfreek/game-db-manager/pkg/logging"
)

var printGiftListCmd = &cobra.Command{
	Use:   "print-giftlist",
	Short: "Output a list of duplicate games I can give away",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		r, err := reconciler(false, false)
		if err != nil {
			return err
		}
		defer r.DB.Close()
		if err := r.GiftList(); err != nil {
			return err
		}
		logging.Info().Msg("upload result to the wiki page listing the giveaway duplicates")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(printGiftListCmd)
}
