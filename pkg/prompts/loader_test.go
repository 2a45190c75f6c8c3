package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoader_Load(t *testing.T) {
	storyCopy, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, "Story Sprout", storyCopy.Title)
	assert.NotEmpty(t, storyCopy.SystemPrompt)
	assert.Equal(t, 400, storyCopy.MaxPromptChars)
	assert.Equal(t, 0, storyCopy.MinAge)
	assert.Equal(t, 8, storyCopy.MaxAge)
	assert.Equal(t, 4, storyCopy.DefaultAge)
	assert.Equal(t, "The response was cut off because it was too long.", storyCopy.Messages.LengthWarning)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, storyCopy.Ratings())
	assert.Equal(t, "5 - Wonderful", storyCopy.RateLabel(5))
	assert.Equal(t, "9", storyCopy.RateLabel(9))
}

func TestFileLoader_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stories.yaml")
	content := "system_prompt: Write about animals only.\nmax_prompt_chars: 120\nmessages:\n  flagged: Nope.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	storyCopy, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "Write about animals only.", storyCopy.SystemPrompt)
	assert.Equal(t, 120, storyCopy.MaxPromptChars)
	assert.Equal(t, "Nope.", storyCopy.Messages.Flagged)
	assert.Equal(t, "Please tell us what the story should be about.", storyCopy.Messages.NoText)
	assert.Equal(t, "Story Sprout", storyCopy.Title)
}

func TestFileLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading stories file")
}

func TestFileLoader_InvalidOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stories.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_age: 12\n"), 0o600))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_age 12")
}

func TestStoryCopy_Validate(t *testing.T) {
	err := StoryCopy{MinAge: 5, MaxAge: 2, DefaultAge: 3}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system_prompt is empty")
	assert.Contains(t, err.Error(), "max_prompt_chars")
	assert.Contains(t, err.Error(), "age range 5-2")
	assert.Contains(t, err.Error(), "rate_options is empty")
}
