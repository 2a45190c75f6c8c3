package tokens

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedModel is matched by every *UnsupportedModelError.
var ErrUnsupportedModel = errors.New("unsupported model")

// ErrAliasChain reports an alias that points at another alias.
var ErrAliasChain = errors.New("model alias resolves to another alias")

// UnsupportedModelError is returned when no accounting rule is known for a model.
type UnsupportedModelError struct {
	Model string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("token estimation is not implemented for model %q", e.Model)
}

func (e *UnsupportedModelError) Is(target error) bool {
	return target == ErrUnsupportedModel
}

// accounting is the chat formatting cost of one dated snapshot.
type accounting struct {
	perMessage int
	// perName is added when a message carries a name. It is negative for
	// snapshots that drop the role once a name is given.
	perName int
}

var snapshots = map[string]accounting{
	"gpt-3.5-turbo-0301":     {perMessage: 4, perName: -1},
	"gpt-3.5-turbo-0613":     {perMessage: 3, perName: 1},
	"gpt-3.5-turbo-16k-0613": {perMessage: 3, perName: 1},
	"gpt-4-0314":             {perMessage: 3, perName: 1},
	"gpt-4-32k-0314":         {perMessage: 3, perName: 1},
	"gpt-4-0613":             {perMessage: 3, perName: 1},
	"gpt-4-32k-0613":         {perMessage: 3, perName: 1},
}

// aliases map rolling model names to the snapshot whose accounting they are
// estimated with. Targets must be keys of snapshots.
var aliases = map[string]string{
	"gpt-3.5-turbo":     "gpt-3.5-turbo-0301",
	"gpt-3.5-turbo-16k": "gpt-3.5-turbo-16k-0613",
	"gpt-4":             "gpt-4-0314",
	"gpt-4-32k":         "gpt-4-32k-0314",
}

// Resolve returns the dated snapshot used to account for model and whether
// model was an alias. At most one redirect is followed.
func Resolve(model string) (string, bool, error) {
	if _, ok := snapshots[model]; ok {
		return model, false, nil
	}

	target, ok := aliases[model]
	if !ok {
		return "", false, &UnsupportedModelError{Model: model}
	}
	if _, chained := aliases[target]; chained {
		return "", true, fmt.Errorf("%w: %s -> %s", ErrAliasChain, model, target)
	}
	if _, ok := snapshots[target]; !ok {
		return "", true, &UnsupportedModelError{Model: target}
	}
	return target, true, nil
}

// SupportedModels lists every identifier Estimate accepts, aliases included.
func SupportedModels() []string {
	models := make([]string, 0, len(snapshots)+len(aliases))
	for name := range aliases {
		models = append(models, name)
	}
	for name := range snapshots {
		models = append(models, name)
	}
	sort.Strings(models)
	return models
}
