package model

import "time"

type OrderItemLine struct {
	OccurrenceID string
	ProductID    string
	ProductName  string
	Quantity     int
	UnitPrice    int64
	UpdatedAt    time.Time
}

func (l OrderItemLine) LineTotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

// ServiceUsage is a metered rental (rackets, shuttle machine, coach). EndedAt nil
// means the meter is still running.
type ServiceUsage struct {
	ID               string
	OccurrenceID     string
	ServiceID        string
	ServiceName      string
	Quantity         int
	UnitPricePerHour int64
	StartedAt        time.Time
	EndedAt          *time.Time
}

func (u ServiceUsage) Open() bool {
	return u.EndedAt == nil
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

type PaymentKind string

const (
	// PaymentDeposit is taken on the booking up front and applied to court fees.
	PaymentDeposit PaymentKind = "deposit"
	// PaymentSettlement is taken at the counter against an occurrence's bill.
	PaymentSettlement PaymentKind = "settlement"
)

type Payment struct {
	ID           string
	BookingID    string
	OccurrenceID string
	OrderID      string
	Kind         PaymentKind
	Amount       int64
	Method       string
	Status       PaymentStatus
	ProviderRef  string
	Note         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Order is the checkout snapshot written when an occurrence is settled. It is
// a record of what was billed, never an input to later calculations.
type Order struct {
	ID                string
	OccurrenceID      string
	BookingID         string
	CustomerID        string
	CourtTotal        int64
	CourtPaid         int64
	CourtRemaining    int64
	ItemsSubtotal     int64
	ServicesSubtotal  int64
	LateFeePercentage int64
	LateFee           int64
	OverdueMinutes    int64
	Total             int64
	Paid              int64
	Partial           bool
	Note              string
	CreatedAt         time.Time
}

type Product struct {
	ID             string
	Name           string
	UnitPrice      int64
	AvailableStock int
}

type Service struct {
	ID           string
	Name         string
	PricePerHour int64
	Active       bool
	// StockQuantity is the number of units on the shelf; nil when the service
	// is not stock-limited (a coach, a ball machine).
	StockQuantity *int
}

// HasStock reports whether qty more units can be rented out.
func (s Service) HasStock(qty int) bool {
	return s.StockQuantity == nil || *s.StockQuantity >= qty
}
