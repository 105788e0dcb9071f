package booking

import (
	"github.com/codr1/courtbook/internal/models"
)

// RefundPercentage picks the refund share for a cancellation hoursUntilStart
// before the booking begins. The tier with the largest MinHoursBefore that the
// notice still satisfies wins. Without any tiers a cancellation before the
// start is refunded in full and one after the start is not refunded. A forced
// cancellation always refunds in full.
func RefundPercentage(tiers []models.CancellationTier, hoursUntilStart float64, force bool) int64 {
	if force {
		return 100
	}
	if len(tiers) == 0 {
		if hoursUntilStart > 0 {
			return 100
		}
		return 0
	}
	if hoursUntilStart < 0 {
		return 0
	}

	best := int64(-1)
	pct := int64(0)
	for _, tier := range tiers {
		if float64(tier.MinHoursBefore) <= hoursUntilStart && tier.MinHoursBefore > best {
			best = tier.MinHoursBefore
			pct = tier.RefundPercentage
		}
	}
	return clampPercent(pct)
}

// RefundAmount is priceCents * pct / 100 rounded down and never above priceCents.
func RefundAmount(priceCents, pct int64) int64 {
	if priceCents <= 0 {
		return 0
	}
	amount := priceCents * clampPercent(pct) / 100
	if amount > priceCents {
		return priceCents
	}
	return amount
}

func RefundStatusFor(priceCents, refundCents int64) models.RefundStatus {
	switch {
	case refundCents <= 0:
		return models.RefundNone
	case refundCents >= priceCents:
		return models.RefundFull
	default:
		return models.RefundPartial
	}
}

func clampPercent(pct int64) int64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
