package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) newModerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "moderate <text...>",
		Short: "Check text against the usage policies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.storyService()
			if err != nil {
				return err
			}

			flagged, err := svc.Moderate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if flagged {
				fmt.Fprintln(cmd.OutOrStdout(), "flagged")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "not flagged")
			}
			return nil
		},
	}
}
