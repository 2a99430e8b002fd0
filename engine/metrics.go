package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBidsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toybid_bids_admitted_total",
		Help: "Number of bids accepted and committed",
	})
	metricBidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toybid_bids_rejected_total",
		Help: "Number of bids rejected, by reason",
	}, []string{"reason"})
	metricAuctionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toybid_auctions_closed_total",
		Help: "Number of auctions transitioned to ended",
	})
	metricReassignments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toybid_reassignments_total",
		Help: "Number of payment-timeout reassignments",
	})
	metricSweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toybid_sweep_errors_total",
		Help: "Number of per-auction failures during sweeps",
	})
)

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrOwnerBid):
		return "owner_bid"
	case errors.Is(err, ErrConsecutiveBid):
		return "consecutive_bid"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMissingContact):
		return "missing_contact"
	default:
		return "other"
	}
}
