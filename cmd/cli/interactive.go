package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kcaldas/storysprout/pkg/story"
)

const (
	quitCommand    = "/quit"
	restartCommand = "/restart"
	storiesCommand = "/stories"
)

// runInteractive asks for ideas, tells stories and collects ratings until the
// reader quits or input ends.
func (a *app) runInteractive(ctx context.Context, out io.Writer) error {
	svc, err := a.storyService()
	if err != nil {
		return err
	}
	storyCopy := svc.Copy()

	rl, err := a.deps.NewLineReader()
	if err != nil {
		return fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	render := newRenderer(out)
	sess := svc.NewSession()

	fmt.Fprintf(out, "%s\n%s\n\n", storyCopy.Title, storyCopy.Subtitle)
	if storyCopy.PromptPlaceholder != "" {
		fmt.Fprintf(out, "For example: %s\n", storyCopy.PromptPlaceholder)
	}
	fmt.Fprintf(out, "Type %s to read your stories again, %s to clear them or %s to leave.\n\n",
		storiesCommand, restartCommand, quitCommand)

	for {
		prompt, err := ask(rl, "What is your story about? ")
		if err != nil {
			return endOfInput(err)
		}
		switch prompt {
		case "":
			continue
		case quitCommand, "/exit":
			return nil
		case restartCommand:
			sess.Reset()
			fmt.Fprintln(out, "Your stories were cleared.")
			continue
		case storiesCommand:
			printStories(out, sess, render)
			continue
		}

		ageText, err := ask(rl, fmt.Sprintf("Age of the reader? [%d] ", sess.Age))
		if err != nil {
			return endOfInput(err)
		}
		if ageText != "" {
			age, convErr := strconv.Atoi(ageText)
			if convErr != nil {
				fmt.Fprintln(out, "Please enter the age as a whole number.")
				continue
			}
			sess.Age = age
		}

		sess.UserMessage = prompt
		accepted, err := tellStory(ctx, out, svc, sess, render)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if !accepted {
			continue
		}

		if err := collectFeedback(ctx, out, rl, svc, sess); err != nil {
			return endOfInput(err)
		}
	}
}

func collectFeedback(ctx context.Context, out io.Writer, rl LineReader, svc *story.Service, sess *story.Session) error {
	storyCopy := svc.Copy()

	fmt.Fprintln(out, storyCopy.Messages.Rate)
	for _, r := range storyCopy.Ratings() {
		fmt.Fprintf(out, "  %s\n", storyCopy.RateLabel(r))
	}

	ratingText, err := ask(rl, "Your rating (empty to skip): ")
	if err != nil || ratingText == "" {
		return err
	}
	rating, convErr := strconv.Atoi(ratingText)
	if convErr != nil {
		fmt.Fprintln(out, "Rating skipped, it must be a number.")
		return nil
	}

	comments, err := ask(rl, "Additional comments: ")
	if err != nil {
		return err
	}

	if err := svc.SubmitFeedback(ctx, sess, rating, comments); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return nil
	}
	fmt.Fprintln(out, storyCopy.Messages.FeedbackThanks)
	fmt.Fprintln(out)
	return nil
}

// printStories lists the session's stories, newest first.
func printStories(out io.Writer, sess *story.Session, render func(string) string) {
	if len(sess.Stories) == 0 {
		fmt.Fprintln(out, "No stories yet.")
		return
	}
	for i := len(sess.Stories) - 1; i >= 0; i-- {
		fmt.Fprintf(out, "\nStory #%d\n\n", i+1)
		fmt.Fprintln(out, render(sess.Stories[i]))
	}
	fmt.Fprintln(out)
}

func ask(rl LineReader, prompt string) (string, error) {
	rl.SetPrompt(prompt)
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// endOfInput treats Ctrl-D and Ctrl-C as a normal exit.
func endOfInput(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
		return nil
	}
	return err
}
