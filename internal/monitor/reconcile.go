package monitor

import (
	"cardwatch/internal/models"

	"github.com/shopspring/decimal"
)

// Reconciler applies the price-update policy: a strictly lower quote
// becomes the new target and produces one alert; anything else leaves the
// target alone. Unavailable quotes and zero prices never touch the target.
type Reconciler struct {
	Renderer *Renderer
}

// Reconcile returns the target to store for item and the alert to send, if
// any.
func (r *Reconciler) Reconcile(item models.WatchItem, q models.PriceQuote) (decimal.Decimal, *models.AlertFragment) {
	if !q.Available() || q.Price.Sign() <= 0 {
		return item.TargetPrice, nil
	}
	if !q.Price.LessThan(item.TargetPrice) {
		return item.TargetPrice, nil
	}
	return q.Price, &models.AlertFragment{
		Key:      item.Key(),
		OldPrice: item.TargetPrice,
		NewPrice: q.Price,
		Text:     r.Renderer.Render(item, q.Price),
	}
}
