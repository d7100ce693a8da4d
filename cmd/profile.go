package cmd

import (
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Create or inspect learner profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <user-id>",
	Short: "Create a learner profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")

		a, cleanup, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := a.ledger.CreateProfile(cmd.Context(), args[0], name, email)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Print a learner profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := a.ledger.Profile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

func init() {
	profileCreateCmd.Flags().String("name", "", "Display name")
	profileCreateCmd.Flags().String("email", "", "Email address")

	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileShowCmd)
}
