package inventory

import (
	"fmt"
	"time"

	"github.com/example/stock-reservation/internal/domain/product"
)

// ConfirmReservation confirms r and deducts its quantity from p. Both
// aggregates are mutated in memory only; the caller must persist them in
// one unit of work and discard both if anything fails.
func ConfirmReservation(r *Reservation, p *product.Product, now time.Time) error {
	if r.ProductID != p.ID {
		return fmt.Errorf("%w: reservation %s is for %s, not %s", ErrProductMismatch, r.ID, r.ProductID, p.ID)
	}
	if err := r.Confirm(now); err != nil {
		return err
	}
	if err := p.AdjustQuantity(-r.Quantity, ""); err != nil {
		return fmt.Errorf("deduct stock for reservation %s: %w", r.ID, err)
	}
	return nil
}
