package order

import (
	"time"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/models"
)

// forwardStatuses is the fixed ordered status set. Cancelled sits
// outside the chain and is reachable from any non-terminal state.
var forwardStatuses = []string{
	models.StatusPending,
	models.StatusProcessing,
	models.StatusHandOnCourier,
	models.StatusShipped,
	models.StatusDelivered,
}

func statusIndex(status string) int {
	for i, s := range forwardStatuses {
		if s == status {
			return i
		}
	}
	return -1
}

func isTerminal(status string) bool {
	return status == models.StatusDelivered || status == models.StatusCancelled
}

// checkTransition decides whether current -> target is legal.
// Forward skips are allowed (an admin may mark a pending order shipped
// directly), with one exception: Delivered is only reachable from
// Shipped, so an order cannot jump straight to completion.
func checkTransition(current, target string) error {
	if isTerminal(current) {
		return &apperr.IllegalTransition{From: current, To: target}
	}
	if target == models.StatusCancelled {
		return nil
	}

	ci, ti := statusIndex(current), statusIndex(target)
	if ci < 0 || ti < 0 || ti <= ci {
		return &apperr.IllegalTransition{From: current, To: target}
	}
	if target == models.StatusDelivered && current != models.StatusShipped {
		return &apperr.IllegalTransition{From: current, To: target}
	}
	return nil
}

// stampTimeline records the moment the order entered target. Existing
// stamps are never overwritten; skipped intermediate statuses stay
// unstamped.
func stampTimeline(tl *models.Timeline, target string, now time.Time) {
	set := func(field **time.Time) {
		if *field == nil {
			t := now
			*field = &t
		}
	}
	switch target {
	case models.StatusProcessing:
		set(&tl.ProcessingAt)
	case models.StatusHandOnCourier:
		set(&tl.HandedToCourierAt)
	case models.StatusShipped:
		set(&tl.ShippedAt)
	case models.StatusDelivered:
		set(&tl.DeliveredAt)
	case models.StatusCancelled:
		set(&tl.CancelledAt)
	}
}
