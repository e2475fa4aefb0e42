// Package checkout computes what an occurrence owes at a point in time.
//
// Estimate is a pure function of its input: the cashier screen polls it and
// finalization calls it once more, and neither may change anything.
package checkout

import (
	"fmt"
	"math"
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/shopspring/decimal"
)

const (
	GracePeriod           = 15 * time.Minute
	DefaultLatePercentage = 150
	// ServiceRoundingUnit is the smallest amount a metered service is billed in.
	ServiceRoundingUnit = 1000
)

type Input struct {
	Occurrence model.Occurrence
	Lines      []model.OrderItemLine
	Usages     []model.ServiceUsage
	// CourtPaid is the deposit already applied to this occurrence's court fee.
	CourtPaid int64
	// LatePercentage scales the per-minute court rate for overdue minutes.
	// Zero or negative means DefaultLatePercentage.
	LatePercentage int64
	Now            time.Time
}

type Estimate struct {
	CourtFee          int64     `json:"court_fee"`
	CourtPaid         int64     `json:"court_paid"`
	CourtRemaining    int64     `json:"court_remaining"`
	ItemsSubtotal     int64     `json:"items_subtotal"`
	ServicesSubtotal  int64     `json:"services_subtotal"`
	LateFeeSurcharge  int64     `json:"late_fee_surcharge"`
	Total             int64     `json:"total"`
	LatePercentage    int64     `json:"late_percentage"`
	OverdueMinutes    int64     `json:"overdue_minutes"`
	ChargeableMinutes int64     `json:"chargeable_minutes"`
	OverdueDisplay    string    `json:"overdue_display"`
	AsOf              time.Time `json:"as_of"`
}

func Compute(in Input) Estimate {
	pct := in.LatePercentage
	if pct <= 0 {
		pct = DefaultLatePercentage
	}
	o := in.Occurrence

	est := Estimate{
		CourtFee:       o.CourtFee,
		CourtPaid:      in.CourtPaid,
		CourtRemaining: max(0, o.CourtFee-in.CourtPaid),
		LatePercentage: pct,
		AsOf:           in.Now,
	}
	est.ItemsSubtotal = ItemsSubtotal(in.Lines)
	est.ServicesSubtotal = ServicesSubtotal(in.Usages, in.Now)

	if o.Status == model.StatusCheckedIn || o.Status == model.StatusCheckedOut {
		ref := in.Now
		if o.CheckOutAt != nil {
			ref = *o.CheckOutAt
		}
		est.OverdueMinutes = OverdueMinutes(o.EndsAt, ref)
		est.ChargeableMinutes, est.LateFeeSurcharge = LateFee(o.CourtFee, o.Duration(), est.OverdueMinutes, pct)
	}
	est.OverdueDisplay = FormatOverdue(est.OverdueMinutes)

	est.Total = est.CourtRemaining + est.ItemsSubtotal + est.ServicesSubtotal + est.LateFeeSurcharge
	if est.Total < 0 {
		est.Total = 0
	}
	return est
}

func ItemsSubtotal(lines []model.OrderItemLine) int64 {
	var sum int64
	for _, l := range lines {
		if l.Quantity > 0 {
			sum += l.LineTotal()
		}
	}
	return sum
}

// ServicesSubtotal bills each usage for its elapsed time. Running usages are
// priced up to now without being closed.
func ServicesSubtotal(usages []model.ServiceUsage, now time.Time) int64 {
	var sum int64
	for _, u := range usages {
		end := now
		if u.EndedAt != nil {
			end = *u.EndedAt
		}
		sum += ServiceCost(u.Quantity, u.UnitPricePerHour, u.StartedAt, end)
	}
	return sum
}

// ServiceCost is quantity x price per hour x elapsed hours, rounded up to the
// next ServiceRoundingUnit.
func ServiceCost(quantity int, pricePerHour int64, start, end time.Time) int64 {
	if quantity <= 0 || pricePerHour <= 0 || !end.After(start) {
		return 0
	}
	hours := decimal.NewFromInt(int64(end.Sub(start) / time.Second)).Div(decimal.NewFromInt(3600))
	raw := decimal.NewFromInt(int64(quantity)).Mul(decimal.NewFromInt(pricePerHour)).Mul(hours)
	unit := decimal.NewFromInt(ServiceRoundingUnit)
	return raw.Div(unit).Ceil().Mul(unit).IntPart()
}

// OverdueMinutes is how far ref is past the scheduled end, rounded to the
// nearest whole minute and never negative.
func OverdueMinutes(scheduledEnd, ref time.Time) int64 {
	if !ref.After(scheduledEnd) {
		return 0
	}
	return int64(math.Round(ref.Sub(scheduledEnd).Minutes()))
}

// LateFee charges the minutes beyond the grace period at the slot's per-minute
// court rate scaled by pct percent, rounded up.
func LateFee(courtFee int64, scheduled time.Duration, overdueMinutes, pct int64) (chargeable, fee int64) {
	grace := int64(GracePeriod / time.Minute)
	if overdueMinutes <= grace || courtFee <= 0 || scheduled <= 0 {
		return 0, 0
	}
	chargeable = overdueMinutes - grace

	scheduledMinutes := decimal.NewFromInt(int64(scheduled / time.Second)).Div(decimal.NewFromInt(60))
	baseMinuteRate := decimal.NewFromInt(courtFee).Div(scheduledMinutes)
	lateFeeRate := baseMinuteRate.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100))
	fee = lateFeeRate.Mul(decimal.NewFromInt(chargeable)).Ceil().IntPart()
	return chargeable, fee
}

func FormatOverdue(minutes int64) string {
	if minutes <= 0 {
		return "0m"
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
