//go:build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/kcaldas/storysprout/pkg/prompts"
	"github.com/kcaldas/storysprout/pkg/story"
	"github.com/kcaldas/storysprout/pkg/tokens"
)

// InitializeStoryService is an injector function - Wire will generate the implementation
func InitializeStoryService() (*story.Service, func(), error) {
	wire.Build(StorySet)
	return nil, nil, nil
}

// InitializeEstimator provides the local token estimator
func InitializeEstimator() *tokens.Estimator {
	wire.Build(ProvideEstimator)
	return nil
}

// InitializeStoryCopy provides the configured story copy
func InitializeStoryCopy() (prompts.StoryCopy, error) {
	wire.Build(ProvideConfigManager, ProvideStoryCopy)
	return prompts.StoryCopy{}, nil
}
