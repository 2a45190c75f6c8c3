// Package prompts holds the story copy: the system prompt, reader-facing
// messages and rating labels, loaded from YAML.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*
var promptsFS embed.FS

const defaultStoriesFile = "prompts/stories.yaml"

// Messages are the texts shown to the reader.
type Messages struct {
	NoText               string `yaml:"no_text"`
	TooLong              string `yaml:"too_long"`
	AgeOutOfRange        string `yaml:"age_out_of_range"`
	Flagged              string `yaml:"flagged"`
	LengthWarning        string `yaml:"length_warning"`
	ContentFilterWarning string `yaml:"content_filter_warning"`
	Generating           string `yaml:"generating"`
	Success              string `yaml:"success"`
	Rate                 string `yaml:"rate"`
	FeedbackThanks       string `yaml:"feedback_thanks"`
}

// StoryCopy is everything configurable about how stories are asked for and presented.
type StoryCopy struct {
	Title             string         `yaml:"title"`
	Subtitle          string         `yaml:"subtitle"`
	SystemPrompt      string         `yaml:"system_prompt"`
	ExampleStory      string         `yaml:"example_story"`
	PromptPlaceholder string         `yaml:"prompt_placeholder"`
	MaxPromptChars    int            `yaml:"max_prompt_chars"`
	MinAge            int            `yaml:"min_age"`
	MaxAge            int            `yaml:"max_age"`
	DefaultAge        int            `yaml:"default_age"`
	Messages          Messages       `yaml:"messages"`
	RateOptions       map[int]string `yaml:"rate_options"`
}

// Validate checks the fields the story service depends on.
func (s StoryCopy) Validate() error {
	var errs []error
	if strings.TrimSpace(s.SystemPrompt) == "" {
		errs = append(errs, errors.New("system_prompt is empty"))
	}
	if s.MaxPromptChars <= 0 {
		errs = append(errs, fmt.Errorf("max_prompt_chars must be positive, got %d", s.MaxPromptChars))
	}
	if s.MinAge < 0 || s.MinAge > s.MaxAge {
		errs = append(errs, fmt.Errorf("age range %d-%d is invalid", s.MinAge, s.MaxAge))
	}
	if s.DefaultAge < s.MinAge || s.DefaultAge > s.MaxAge {
		errs = append(errs, fmt.Errorf("default_age %d outside %d-%d", s.DefaultAge, s.MinAge, s.MaxAge))
	}
	if len(s.RateOptions) == 0 {
		errs = append(errs, errors.New("rate_options is empty"))
	}
	return errors.Join(errs...)
}

// Ratings returns the valid rating values in ascending order.
func (s StoryCopy) Ratings() []int {
	ratings := make([]int, 0, len(s.RateOptions))
	for r := range s.RateOptions {
		ratings = append(ratings, r)
	}
	sort.Ints(ratings)
	return ratings
}

// RateLabel returns the label for rating, or the bare number if none is configured.
func (s StoryCopy) RateLabel(rating int) string {
	if label, ok := s.RateOptions[rating]; ok {
		return label
	}
	return fmt.Sprintf("%d", rating)
}

// Loader defines how the story copy is loaded
type Loader interface {
	Load() (StoryCopy, error)
}

// DefaultLoader reads the copy embedded in the binary.
type DefaultLoader struct{}

// Load reads and validates the embedded stories file.
func (l *DefaultLoader) Load() (StoryCopy, error) {
	data, err := promptsFS.ReadFile(defaultStoriesFile)
	if err != nil {
		return StoryCopy{}, fmt.Errorf("error reading embedded stories file: %w", err)
	}

	var storyCopy StoryCopy
	if err := yaml.Unmarshal(data, &storyCopy); err != nil {
		return StoryCopy{}, fmt.Errorf("error unmarshaling stories file: %w", err)
	}
	if err := storyCopy.Validate(); err != nil {
		return StoryCopy{}, fmt.Errorf("embedded stories file: %w", err)
	}
	return storyCopy, nil
}

// FileLoader overlays a YAML file on top of the embedded defaults. Keys
// missing from the file keep their default value.
type FileLoader struct {
	Path string
}

// Load reads the defaults, then the file at l.Path.
func (l *FileLoader) Load() (StoryCopy, error) {
	storyCopy, err := (&DefaultLoader{}).Load()
	if err != nil {
		return StoryCopy{}, err
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		return StoryCopy{}, fmt.Errorf("error reading stories file: %w", err)
	}
	if err := yaml.Unmarshal(data, &storyCopy); err != nil {
		return StoryCopy{}, fmt.Errorf("error unmarshaling %s: %w", l.Path, err)
	}
	if err := storyCopy.Validate(); err != nil {
		return StoryCopy{}, fmt.Errorf("%s: %w", l.Path, err)
	}
	return storyCopy, nil
}

// NewLoader returns a FileLoader for path, or the embedded loader when path is empty.
func NewLoader(path string) Loader {
	if strings.TrimSpace(path) == "" {
		return &DefaultLoader{}
	}
	return &FileLoader{Path: path}
}
