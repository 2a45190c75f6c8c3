package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kcaldas/storysprout/pkg/story"
)

func (a *app) newStoryCommand() *cobra.Command {
	var (
		age      int
		rating   int
		comments string
	)

	cmd := &cobra.Command{
		Use:   "story [prompt...]",
		Short: "Write a story about the given idea",
		Long: `Write a story about the given idea. The idea can also be piped in.

Examples:
  sprout story a hedgehog who learns to share
  sprout story --age 6 a robot that paints the sky
  sprout story --rate 5 --comments "lovely" a shy cloud
  echo "a cat on a train" | sprout story`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if in := cmd.InOrStdin(); prompt == "" && hasStdinInput(in) {
				input, err := readStdinInput(in)
				if err != nil {
					return err
				}
				prompt = strings.TrimSpace(input)
			}

			svc, err := a.storyService()
			if err != nil {
				return err
			}

			sess := svc.NewSession()
			sess.UserMessage = prompt
			if cmd.Flags().Changed("age") {
				sess.Age = age
			}

			out := cmd.OutOrStdout()
			accepted, err := tellStory(cmd.Context(), out, svc, sess, newRenderer(out))
			if err != nil {
				return err
			}
			if !accepted {
				return errors.New(sess.PromptError)
			}

			if !cmd.Flags().Changed("rate") {
				return nil
			}
			if err := svc.SubmitFeedback(cmd.Context(), sess, rating, comments); err != nil {
				return err
			}
			fmt.Fprintln(out, svc.Copy().Messages.FeedbackThanks)
			return nil
		},
	}

	cmd.Flags().IntVar(&age, "age", 0, "age of the reader (defaults to the configured age)")
	cmd.Flags().IntVar(&rating, "rate", 0, "rate the story from 0 to 5")
	cmd.Flags().StringVar(&comments, "comments", "", "additional comments sent with the rating")

	return cmd
}

// tellStory checks the session's prompt and, when accepted, writes and prints
// the story. A rejected prompt is printed and reported as not accepted.
func tellStory(ctx context.Context, out io.Writer, svc *story.Service, sess *story.Session, render func(string) string) (bool, error) {
	msgs := svc.Copy().Messages

	accepted, err := svc.CheckPrompt(ctx, sess)
	if err != nil {
		return false, err
	}
	if !accepted {
		fmt.Fprintln(out, sess.PromptError)
		return false, nil
	}

	fmt.Fprintln(out, msgs.Generating)
	if err := svc.GenerateStory(ctx, sess); err != nil {
		return false, err
	}

	if sess.StoryWarning != "" {
		fmt.Fprintf(out, "Warning: %s\n", sess.StoryWarning)
	}
	fmt.Fprintln(out, msgs.Success)
	fmt.Fprintf(out, "\nStory #%d\n\n", len(sess.Stories))
	fmt.Fprintln(out, render(sess.Story))
	fmt.Fprintln(out)
	return true, nil
}
