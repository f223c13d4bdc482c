package notify

import (
	"context"

	"cardwatch/internal/obs"
)

// Log writes alerts to the structured log instead of a chat. Useful for
// dry runs.
type Log struct{}

func (Log) Send(ctx context.Context, text string) error {
	obs.Logger.Info("price alert", "text", text)
	return nil
}
