package gather

import (
	"context"
	"fmt"
)

// State is the harvest state of a user as seen from stored data.
type State string

const (
	// StateNew means nothing has been stored for the user yet.
	StateNew State = "NEW"
	// StateBackfilling means partitions exist but the history end was never reached.
	StateBackfilling State = "BACKFILLING"
	// StateComplete means the full history was harvested at least once.
	StateComplete State = "COMPLETE"
	// StateToppingUp means a pass is running for a completed user.
	StateToppingUp State = "TOPPING_UP"
)

// State derives the state of a user from the completion marker, the stored
// partitions and the passes currently running in this process.
func (g *Gatherer) State(ctx context.Context, username string) (State, error) {
	complete, err := g.partitions.IsComplete(ctx, username)
	if err != nil {
		return "", fmt.Errorf("state of %s: %w", username, err)
	}
	running := g.running(username)

	if complete {
		if running {
			return StateToppingUp, nil
		}
		return StateComplete, nil
	}
	if running {
		return StateBackfilling, nil
	}

	keys, err := g.partitions.List(ctx, username)
	if err != nil {
		return "", fmt.Errorf("state of %s: %w", username, err)
	}
	if len(keys) == 0 {
		return StateNew, nil
	}
	return StateBackfilling, nil
}
