// Package lifecycle holds the pure rules of the auction state machine:
// phase resolution from the time window and the bid acceptance guards.
// Nothing here touches storage or the clock; callers pass the instant in.
package lifecycle

import (
	"time"

	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
)

// EffectiveStatus resolves the phase an auction is in at the given
// instant. The stored status only matters when it is closed: a manual
// close is sticky and time cannot undo it. Everything else is derived
// from the window, so no background process is needed to end auctions.
func EffectiveStatus(stored models.Status, start, end, now time.Time) models.Status {
	if stored == models.StatusClosed {
		return models.StatusClosed
	}
	if now.Before(start) {
		return models.StatusPending
	}
	if now.Before(end) {
		return models.StatusActive
	}
	return models.StatusEnded
}

// Resolve is EffectiveStatus applied to an auction value.
func Resolve(a *models.Auction, now time.Time) models.Status {
	return EffectiveStatus(a.Status, a.StartTime, a.EndTime, now)
}

// MinimumBid returns the lowest acceptable next bid: the starting bid
// until someone has bid, then one unit above the current bid.
func MinimumBid(currentBid, startingBid float64) float64 {
	if currentBid > 0 {
		return currentBid + 1
	}
	return startingBid
}

// MeetsBuyNow reports whether an accepted bid of amount ends the auction
// immediately. A bid that meets or exceeds a configured buy-now price
// closes the auction even when placed as a regular bid; there is no
// separate buy-now code path.
func MeetsBuyNow(amount, buyNowPrice float64) bool {
	return buyNowPrice > 0 && amount >= buyNowPrice
}

// InWindow reports whether now falls inside [start, end).
func InWindow(start, end, now time.Time) bool {
	return !now.Before(start) && now.Before(end)
}
