package engine

import "errors"

// 出價與生命週期操作的錯誤分類
// 驗證類錯誤對該次請求是終局的，不會自動重試；ErrConcurrencyConflict 是暫時性的，
// 引擎內部會在有限次數內重新讀取並重試，用盡後以最新價格回報 ErrBidTooLow
var (
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrExpired             = errors.New("auction has expired")
	ErrOwnerBid            = errors.New("owner cannot bid on own auction")
	ErrConsecutiveBid      = errors.New("bidder already holds the highest bid")
	ErrBidTooLow           = errors.New("bid amount is too low")
	ErrRateLimited         = errors.New("bidder is in cooldown")
	ErrAlreadyEnded        = errors.New("auction already ended")
	ErrNotExpired          = errors.New("payment is not due")
	ErrNoNextBidder        = errors.New("no next bidder available")
	ErrMissingContact      = errors.New("contact cannot be resolved")
	ErrConcurrencyConflict = errors.New("lost race to a concurrent update")
	ErrMissingFields       = errors.New("missing required fields")
	ErrInvalidCategory     = errors.New("invalid auction category")
)
