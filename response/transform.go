package response

import (
	"context"
	"fmt"

	"github.com/casualjim/instruct/pkg/stdx"
)

// Transformer post-processes a deserialized value. Transformers must not retain the value.
type Transformer[T any] func(context.Context, T) (T, error)

// Transformers runs a list of transformers in registration order.
type Transformers[T any] []Transformer[T]

// Apply threads value through every transformer. A failing transformer turns into a
// *ValidationError so the failure can be fed back to the model.
func (ts Transformers[T]) Apply(ctx context.Context, value T) (T, error) {
	for i, transform := range ts {
		next, err := transform(ctx, value)
		if err != nil {
			if fe := FieldErrors(err); len(fe) > 0 && fe[0].Field != "" {
				return stdx.Zero[T](), &ValidationError{Errors: fe, Err: err}
			}
			return stdx.Zero[T](), &ValidationError{
				Errors: []FieldError{{Message: fmt.Sprintf("transform %d failed: %v", i, err)}},
				Err:    err,
			}
		}
		value = next
	}
	return value, nil
}
