package monitor

import (
	"context"
	"errors"
	"strings"

	"cardwatch/internal/models"
	"cardwatch/internal/obs"
)

// DefaultMaxChunk is the payload budget of one notifier send.
const DefaultMaxChunk = 4000

// Notifier delivers one chunk of alert text. Send blocks until the
// destination accepted or refused the text.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// PayloadSizer is implemented by notifiers whose wire payload is larger than
// the raw text (headers, escaping). The batcher budgets that size instead of
// len(text).
type PayloadSizer interface {
	PayloadSize(text string) int
}

// Batcher joins fragments into chunks that never exceed MaxChunk, splitting
// only between fragments.
type Batcher struct {
	MaxChunk  int
	Separator string
	Size      func(string) int
}

// NewBatcher returns a batcher with the default separator. Zero maxChunk
// means DefaultMaxChunk.
func NewBatcher(maxChunk int) *Batcher {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	return &Batcher{MaxChunk: maxChunk, Separator: "\n\n"}
}

func (b *Batcher) size(s string) int {
	if b.Size != nil {
		return b.Size(s)
	}
	return len(s)
}

// Chunks packs the fragments in the order given. Fragments that cannot fit a
// chunk on their own are returned separately and appear in no chunk.
func (b *Batcher) Chunks(frags []models.AlertFragment) (chunks []string, dropped []models.AlertFragment) {
	var cur strings.Builder
	for _, f := range frags {
		if b.size(f.Text) > b.MaxChunk {
			dropped = append(dropped, f)
			continue
		}
		if cur.Len() == 0 {
			cur.WriteString(f.Text)
			continue
		}
		candidate := cur.String() + b.Separator + f.Text
		if b.size(candidate) > b.MaxChunk {
			chunks = append(chunks, cur.String())
			cur.Reset()
			cur.WriteString(f.Text)
			continue
		}
		cur.Reset()
		cur.WriteString(candidate)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks, dropped
}

// Delivery summarizes one Deliver call.
type Delivery struct {
	Chunks  int
	Sent    int
	Dropped int
}

// Deliver chunks frags and sends every chunk through n. A failed chunk does
// not stop the remaining ones; all failures come back joined as
// *NotifierError values. No fragments means no send.
func (b *Batcher) Deliver(ctx context.Context, n Notifier, frags []models.AlertFragment) (Delivery, error) {
	chunks, dropped := b.Chunks(frags)
	for _, f := range dropped {
		obs.Logger.Warn("alert fragment larger than chunk budget, dropped",
			"item", f.Key.String(), "size", b.size(f.Text), "max_chunk", b.MaxChunk)
	}
	d := Delivery{Chunks: len(chunks), Dropped: len(dropped)}
	var errs []error
	for i, c := range chunks {
		if err := n.Send(ctx, c); err != nil {
			errs = append(errs, &NotifierError{Chunk: i + 1, Err: err})
			continue
		}
		d.Sent++
	}
	return d, errors.Join(errs...)
}
