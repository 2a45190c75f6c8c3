package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kcaldas/storysprout/pkg/story"
	"github.com/kcaldas/storysprout/pkg/tokens"
)

func (a *app) newTokensCommand() *cobra.Command {
	var (
		model         string
		instruction   string
		noInstruction bool
		name          string
		age           int
	)

	cmd := &cobra.Command{
		Use:   "tokens [flags] <text...>",
		Short: "Estimate the prompt tokens of a story request",
		Long: `Estimate locally, without calling the API, how many prompt tokens a story
request would use. By default the story system prompt is sent first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				model = a.deps.Config().GetModelConfig().ModelName
			}

			var messages []tokens.Message
			if !noInstruction {
				if instruction == "" {
					storyCopy, err := a.deps.StoryCopy()
					if err != nil {
						return err
					}
					instruction = storyCopy.SystemPrompt
				}
				messages = append(messages, tokens.Message{Role: tokens.RoleSystem, Content: instruction})
			}

			text := strings.Join(args, " ")
			if cmd.Flags().Changed("age") {
				text = story.UserMessageFor(text, age)
			}
			messages = append(messages, tokens.Message{Role: tokens.RoleUser, Content: text, Name: name})

			count, err := a.deps.Estimator().Estimate(model, messages)
			if errors.Is(err, tokens.ErrUnsupportedModel) {
				return fmt.Errorf("%w (supported: %s)", err, strings.Join(tokens.SupportedModels(), ", "))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tokens\n", model, count)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model whose accounting rule is used (defaults to the configured model)")
	cmd.Flags().StringVar(&instruction, "instruction", "", "system message (defaults to the story system prompt)")
	cmd.Flags().BoolVar(&noInstruction, "no-instruction", false, "estimate the user message alone")
	cmd.Flags().StringVar(&name, "name", "", "participant name attached to the user message")
	cmd.Flags().IntVar(&age, "age", 0, "wrap the text the way story requests do for this age")

	return cmd
}
