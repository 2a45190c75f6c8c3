package di

import (
	"context"
	"fmt"

	"github.com/google/wire"

	"github.com/kcaldas/storysprout/pkg/config"
	"github.com/kcaldas/storysprout/pkg/events"
	"github.com/kcaldas/storysprout/pkg/ledger"
	"github.com/kcaldas/storysprout/pkg/llm/openai"
	"github.com/kcaldas/storysprout/pkg/logging"
	"github.com/kcaldas/storysprout/pkg/notify"
	"github.com/kcaldas/storysprout/pkg/prompts"
	"github.com/kcaldas/storysprout/pkg/story"
	"github.com/kcaldas/storysprout/pkg/tokens"
)

// Shared event bus instance
var eventBus = events.NewEventBus()

// EventBus returns the process-wide bus so callers can subscribe and flush it.
func EventBus() *events.InMemoryBus {
	return eventBus
}

func ProvidePublisher() events.Publisher {
	return eventBus
}

// ProvideConfigManager provides a configuration manager
func ProvideConfigManager() config.Manager {
	return config.NewConfigManager()
}

// ProvideStoryCopy loads the story copy, from SPROUT_STORY_FILE when set.
func ProvideStoryCopy(cfg config.Manager) (prompts.StoryCopy, error) {
	loader := prompts.NewLoader(cfg.GetStringWithDefault("SPROUT_STORY_FILE", ""))
	return loader.Load()
}

func ProvideEstimator() *tokens.Estimator {
	return tokens.NewEstimator()
}

// ProvideOpenAIClient builds the conversation client. With a persistent
// conversation the system prompt seeds it once; otherwise it is sent per call.
func ProvideOpenAIClient(cfg config.Manager, storyCopy prompts.StoryCopy, estimator *tokens.Estimator, publisher events.Publisher) (*openai.Client, error) {
	modelCfg := cfg.GetModelConfig()

	clientCfg := openai.Config{
		Model:            modelCfg.ModelName,
		MaxTokens:        modelCfg.MaxTokens,
		FrequencyPenalty: modelCfg.FrequencyPenalty,
		PresencePenalty:  modelCfg.PresencePenalty,
		ModerationModel:  modelCfg.ModerationModel,
		APIKey:           modelCfg.APIKey,
		BaseURL:          modelCfg.BaseURL,
		Organization:     modelCfg.OrgID,
	}
	if modelCfg.Persistent {
		clientCfg.Instruction = storyCopy.SystemPrompt
	}

	return openai.NewClient(clientCfg,
		openai.WithEstimator(estimator),
		openai.WithPublisher(publisher),
		openai.WithExampleStory(storyCopy.ExampleStory),
	)
}

// ProvideLedger opens the results database. The cleanup closes it.
func ProvideLedger(cfg config.Manager) (ledger.Ledger, func(), error) {
	ledgerCfg, err := cfg.GetLedgerConfig()
	if err != nil {
		return nil, nil, err
	}
	l, err := ledger.OpenSQLite(context.Background(), ledgerCfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger %s: %w", ledgerCfg.Path, err)
	}
	logging.NewComponentLogger("ledger").Debug("ledger opened", "path", l.Path())
	return l, func() { l.Close() }, nil
}

func ProvideNotifier(cfg config.Manager) (notify.Notifier, error) {
	return notify.New(cfg.GetSMTPConfig())
}

// ProvideStoryService assembles the story workflow.
func ProvideStoryService(client *openai.Client, storyCopy prompts.StoryCopy, l ledger.Ledger, n notify.Notifier, publisher events.Publisher, cfg config.Manager) *story.Service {
	return story.NewService(client, storyCopy,
		story.WithLedger(l),
		story.WithNotifier(n),
		story.WithPublisher(publisher),
		story.WithTestConfig(cfg.GetTestConfig()),
	)
}

// StorySet provides everything the story service needs.
var StorySet = wire.NewSet(
	ProvideConfigManager,
	ProvidePublisher,
	ProvideStoryCopy,
	ProvideEstimator,
	ProvideOpenAIClient,
	ProvideLedger,
	ProvideNotifier,
	ProvideStoryService,
)
