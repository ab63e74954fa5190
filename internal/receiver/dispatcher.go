package receiver

import (
	"context"

	"github.com/nerrad567/screentime-core/internal/override"
)

// Dispatcher carries out a decoded command. override.Controller satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd override.Command, src override.Source) (override.Result, error)
}
