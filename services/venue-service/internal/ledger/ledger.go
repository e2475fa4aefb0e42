// Package ledger tracks what has been paid against what is owed.
package ledger

import (
	"fmt"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/checkout"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultDepositRatio is charged up front when a deposit amount is not given.
const DefaultDepositRatio = 0.3

type Summary struct {
	Estimate  checkout.Estimate `json:"estimate"`
	Paid      int64             `json:"paid"`
	Pending   int64             `json:"pending"`
	Balance   int64             `json:"balance"`
	ChangeDue int64             `json:"change_due"`
}

func (s Summary) Settled() bool {
	return s.Balance == 0
}

// Summarize nets the settlement payments off an estimate. Deposits are not
// counted here: they already reduced the court fee inside the estimate.
func Summarize(est checkout.Estimate, payments []model.Payment) Summary {
	s := Summary{Estimate: est}
	for _, p := range payments {
		if p.Kind != model.PaymentSettlement {
			continue
		}
		switch p.Status {
		case model.PaymentPaid:
			s.Paid += p.Amount
		case model.PaymentPending:
			s.Pending += p.Amount
		}
	}
	s.Balance = max(0, est.Total-s.Paid)
	s.ChangeDue = max(0, s.Paid-est.Total)
	return s
}

func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", model.ErrInvalidAmount, amount)
	}
	return nil
}

// CheckFinalize fails with ErrOutstandingBalance unless the summary is settled
// or the caller explicitly accepts a partial settlement.
func CheckFinalize(s Summary, allowPartial bool) error {
	if s.Settled() || allowPartial {
		return nil
	}
	return fmt.Errorf("%w: %d still owed", model.ErrOutstandingBalance, s.Balance)
}

// DepositTotal sums Paid deposits.
func DepositTotal(payments []model.Payment) int64 {
	var sum int64
	for _, p := range payments {
		if p.Kind == model.PaymentDeposit && p.Status == model.PaymentPaid {
			sum += p.Amount
		}
	}
	return sum
}

// DepositShare spreads a booking's deposits evenly over its occurrences.
func DepositShare(bookingDeposits int64, occurrences int) int64 {
	if occurrences <= 0 || bookingDeposits <= 0 {
		return 0
	}
	return bookingDeposits / int64(occurrences)
}

// DefaultDeposit is ratio of courtTotal rounded to the nearest unit. A ratio
// outside (0, 1] falls back to DefaultDepositRatio.
func DefaultDeposit(courtTotal int64, ratio float64) int64 {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultDepositRatio
	}
	return decimal.NewFromInt(courtTotal).Mul(decimal.NewFromFloat(ratio)).Round(0).IntPart()
}
