// Package finance holds the mortgage and affordability math used when buyers
// enter the market and again when a negotiated price is settled.
package finance

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

var (
	// ErrInsufficientCash means the buyer cannot cover the down payment.
	ErrInsufficientCash = errors.New("insufficient cash for down payment")
	// ErrDTIExceeded means the total debt service would break the DTI ceiling.
	ErrDTIExceeded = errors.New("debt-to-income ceiling exceeded")
)

// Terms are the lending terms applied to every purchase.
type Terms struct {
	DownPaymentRatio float64
	AnnualRate       float64
	TermYears        int
	MaxDTI           float64
}

// Borrower is the financial snapshot underwriting looks at.
type Borrower struct {
	Cash          int64
	MonthlyIncome int64
	MonthlyDebt   int64
}

// Quote is the financing breakdown for one price.
type Quote struct {
	Price          int64   `json:"price"`
	DownPayment    int64   `json:"down_payment"`
	Loan           int64   `json:"loan"`
	MonthlyPayment int64   `json:"monthly_payment"`
	DTI            float64 `json:"dti"` // after purchase
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MonthlyPayment is the level payment that amortizes principal over termYears
// at annualRate, rounded to the nearest unit.
func MonthlyPayment(principal int64, annualRate float64, termYears int) int64 {
	if principal <= 0 || termYears <= 0 {
		return 0
	}
	n := float64(termYears * 12)
	r := annualRate / 12
	if r == 0 {
		return int64(math.Round(float64(principal) / n))
	}
	f := math.Pow(1+r, n)
	return int64(math.Round(float64(principal) * r * f / (f - 1)))
}

// DownPayment is price × ratio, rounded to the nearest unit.
func DownPayment(price int64, ratio float64) int64 {
	return int64(math.Round(float64(price) * ratio))
}

// DTI is total monthly debt service over monthly income. Zero income with any
// debt is reported as +Inf.
func DTI(monthlyDebt, monthlyIncome int64) float64 {
	if monthlyIncome <= 0 {
		if monthlyDebt <= 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(monthlyDebt) / float64(monthlyIncome)
}

// Quote computes the financing breakdown for price without judging it.
func (t Terms) Quote(b Borrower, price int64) Quote {
	down := DownPayment(price, t.DownPaymentRatio)
	loan := price - down
	payment := MonthlyPayment(loan, t.AnnualRate, t.TermYears)
	return Quote{
		Price:          price,
		DownPayment:    down,
		Loan:           loan,
		MonthlyPayment: payment,
		DTI:            DTI(b.MonthlyDebt+payment, b.MonthlyIncome),
	}
}

// Underwrite quotes price for b and rejects it when the down payment exceeds
// cash or the post-purchase DTI exceeds the ceiling.
func (t Terms) Underwrite(b Borrower, price int64) (Quote, error) {
	q := t.Quote(b, price)
	if price <= 0 {
		return q, fmt.Errorf("price %d: %w", price, ErrInsufficientCash)
	}
	if q.DownPayment > b.Cash {
		return q, fmt.Errorf("down payment %d > cash %d: %w", q.DownPayment, b.Cash, ErrInsufficientCash)
	}
	if q.DTI > t.MaxDTI {
		return q, fmt.Errorf("dti %.3f > %.3f: %w", q.DTI, t.MaxDTI, ErrDTIExceeded)
	}
	return q, nil
}

// MaxAffordablePrice is the highest price b can close under these terms: the
// smaller of the cash-bound price (cash / down ratio) and the DTI-bound price
// (largest loan whose payment fits the remaining DTI budget, grossed up by
// the down payment). Returns 0 when nothing is affordable.
func (t Terms) MaxAffordablePrice(b Borrower) int64 {
	if b.Cash <= 0 || t.DownPaymentRatio <= 0 {
		return 0
	}
	cashBound := float64(b.Cash) / t.DownPaymentRatio

	bound := cashBound
	if t.DownPaymentRatio < 1 {
		budget := t.MaxDTI*float64(b.MonthlyIncome) - float64(b.MonthlyDebt)
		if budget <= 0 {
			return 0
		}
		n := float64(t.TermYears * 12)
		r := t.AnnualRate / 12
		var maxLoan float64
		if r == 0 {
			maxLoan = budget * n
		} else {
			maxLoan = budget * (1 - math.Pow(1+r, -n)) / r
		}
		bound = math.Min(cashBound, maxLoan/(1-t.DownPaymentRatio))
	}

	price := int64(math.Floor(bound))
	// Rounding in the payment/down-payment math can push the exact bound a
	// unit over; walk down until it underwrites.
	for i := 0; i < 32 && price > 0; i++ {
		if _, err := t.Underwrite(b, price); err == nil {
			return price
		}
		step := price / 10_000
		if step < 1 {
			step = 1
		}
		price -= step
	}
	return 0
}
