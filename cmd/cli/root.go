package cli

import (
	"fmt"
	"sync"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/kcaldas/storysprout/internal/di"
	"github.com/kcaldas/storysprout/pkg/config"
	"github.com/kcaldas/storysprout/pkg/events"
	"github.com/kcaldas/storysprout/pkg/logging"
	"github.com/kcaldas/storysprout/pkg/prompts"
	"github.com/kcaldas/storysprout/pkg/story"
	"github.com/kcaldas/storysprout/pkg/tokens"
	"github.com/kcaldas/storysprout/pkg/version"
)

// TokenEstimator counts prompt tokens locally.
type TokenEstimator interface {
	Estimate(model string, messages []tokens.Message) (int, error)
}

// LineReader reads one line of interactive input. *readline.Instance satisfies it.
type LineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
	Close() error
}

// Dependencies are the constructors the commands call lazily, once flags are parsed.
type Dependencies struct {
	StoryService  func() (*story.Service, func(), error)
	StoryCopy     func() (prompts.StoryCopy, error)
	Estimator     func() TokenEstimator
	Config        func() config.Manager
	EventBus      *events.InMemoryBus
	NewLineReader func() (LineReader, error)
}

// DefaultDependencies wires the commands to the real services.
func DefaultDependencies() Dependencies {
	return Dependencies{
		StoryService: di.InitializeStoryService,
		StoryCopy:    di.InitializeStoryCopy,
		Estimator:    func() TokenEstimator { return di.InitializeEstimator() },
		Config:       di.ProvideConfigManager,
		EventBus:     di.EventBus(),
		NewLineReader: func() (LineReader, error) {
			return readline.New("> ")
		},
	}
}

const (
	debugFileEnv     = "SPROUT_DEBUG_FILE"
	defaultDebugFile = "sprout-debug.log"
)

var eventTopics = []string{
	events.PromptCheckedEvent{}.Topic(),
	events.StoryGeneratedEvent{}.Topic(),
	events.FeedbackSubmittedEvent{}.Topic(),
	events.TokenCountEvent{}.Topic(),
}

type app struct {
	deps Dependencies

	// Global flags
	verbose  bool
	quiet    bool
	envFiles []string

	once    sync.Once
	service *story.Service
	cleanup func()
	initErr error
}

func newApp(deps Dependencies) *app {
	return &app{deps: deps}
}

// storyService builds the service on first use so that commands which do not
// need it never open the ledger.
func (a *app) storyService() (*story.Service, error) {
	a.once.Do(func() {
		a.service, a.cleanup, a.initErr = a.deps.StoryService()
		if a.initErr != nil {
			a.initErr = fmt.Errorf("failed to initialize story service: %w", a.initErr)
		}
	})
	return a.service, a.initErr
}

// close releases the ledger and drains pending events.
func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	if a.deps.EventBus != nil {
		a.deps.EventBus.Shutdown()
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sprout",
		Short:         "Story Sprout writes gentle stories for young readers",
		Long:          `Story Sprout turns a short idea into a story for a child between 0 and 8 years old.`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(a.envFiles...); err != nil {
				return err
			}

			// Configure logger based on flags; a debug file takes over when set
			var logger logging.Logger
			if a.deps.Config().GetStringWithDefault(debugFileEnv, "") != "" {
				logger = logging.NewFileLoggerFromEnv(defaultDebugFile)
			} else if a.quiet {
				logger = logging.NewQuietLogger()
			} else if a.verbose {
				logger = logging.NewVerboseLogger()
			} else {
				logger = logging.NewDefaultLogger()
			}
			logging.SetGlobalLogger(logger)

			if a.deps.EventBus != nil {
				a.deps.EventBus.SetLogger(logger.With("component", "events"))
				if a.verbose {
					a.logEvents(logger)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInteractive(cmd.Context(), cmd.OutOrStdout())
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (debug level)")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "quiet output (errors only)")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading configuration")

	root.AddCommand(
		a.newStoryCommand(),
		a.newModerateCommand(),
		a.newTokensCommand(),
		a.newHistoryCommand(),
		newVersionCommand(),
	)
	return root
}

func (a *app) logEvents(logger logging.Logger) {
	for _, topic := range eventTopics {
		topic := topic
		a.deps.EventBus.Subscribe(topic, func(event interface{}) {
			logger.Debug("event", "topic", topic, "payload", fmt.Sprintf("%+v", event))
		})
	}
}
