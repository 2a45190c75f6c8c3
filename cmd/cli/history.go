package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const promptPreview = 50

func (a *app) newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent stories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.storyService()
			if err != nil {
				return err
			}

			results, err := svc.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stories yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tAGE\tFINISH\tTOKENS\tPROMPT")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n",
					r.CreatedAt.Local().Format(time.DateTime), r.Age, r.FinishReason, r.TotalTokens, preview(r.UserMessage))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of stories to show (0 for all)")
	return cmd
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= promptPreview {
		return s
	}
	return string(runes[:promptPreview-3]) + "..."
}
