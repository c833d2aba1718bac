package purchase

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ticketera/backend/internal/models"
)

// linePrice is the priced result for one requested unit.
type linePrice struct {
	SectionID uuid.UUID
	UnitPrice decimal.Decimal
}

// priceLines applies the promotion rule to the requested units and returns
// the per-unit prices plus the request total. A promotion only applies when
// it is active, inside its window and the unit count under it reaches the
// minimum quantity. Per-unit promotions discount each unit; apply-to-total
// promotions discount the promotion group's total once.
func priceLines(sections map[uuid.UUID]*models.Section, promotions map[uuid.UUID]*models.Promotion, lines []Line, now time.Time) ([]linePrice, decimal.Decimal) {
	// Count units per promotion to evaluate minimum-quantity thresholds.
	promoQty := make(map[uuid.UUID]int)
	for _, line := range lines {
		if line.PromotionID != nil {
			promoQty[*line.PromotionID]++
		}
	}

	prices := make([]linePrice, 0, len(lines))
	total := decimal.Zero
	totalDiscountApplied := make(map[uuid.UUID]bool)

	for _, line := range lines {
		unit := sections[line.SectionID].Price

		if line.PromotionID != nil {
			if promo, ok := promotions[*line.PromotionID]; ok && promo.ValidFor(promoQty[promo.ID], now) {
				if promo.ApplyToTotal {
					if !totalDiscountApplied[promo.ID] {
						total = total.Sub(promo.Discount)
						totalDiscountApplied[promo.ID] = true
					}
				} else {
					unit = unit.Sub(promo.Discount)
				}
			}
		}

		if unit.IsNegative() {
			unit = decimal.Zero
		}
		prices = append(prices, linePrice{SectionID: line.SectionID, UnitPrice: unit})
		total = total.Add(unit)
	}

	if total.IsNegative() {
		total = decimal.Zero
	}
	return prices, total
}
