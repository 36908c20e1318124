package billing

import (
	"time"

	"github.com/clubdues/clubdues/pkg/money"
)

// Fees are the amounts owed by one contract for one billing month
type Fees struct {
	MembershipAmount money.Amount `json:"membership_amount"`
	JoiningFeeAmount money.Amount `json:"joining_fee_amount"`
	YearlyFeeAmount  money.Amount `json:"yearly_fee_amount"`
	TotalAmount      money.Amount `json:"total_amount"`
}

// JoiningFeeCharged reports whether this line consumes the joining fee
func (f Fees) JoiningFeeCharged() bool {
	return f.JoiningFeeAmount.IsPositive()
}

// YearlyFeeCharged reports whether this line consumes the annual fee
func (f Fees) YearlyFeeCharged() bool {
	return f.YearlyFeeAmount.IsPositive()
}

// CalculateFees computes one payment line. Each fee is rounded half-up once; the total is
// the exact sum of the rounded lines.
func CalculateFees(c *Contract, membershipAmount money.Amount, billingMonth time.Time) Fees {
	fees := Fees{
		MembershipAmount: membershipAmount.Round(),
		JoiningFeeAmount: money.Zero(),
		YearlyFeeAmount:  money.Zero(),
	}

	if IsJoiningFeeDue(c) {
		fees.JoiningFeeAmount = c.JoiningFeeAmount.Round()
	}

	if IsYearlyFeeDue(c, billingMonth) && c.YearlyFeeAmount != nil && c.YearlyFeeAmount.IsPositive() {
		fees.YearlyFeeAmount = c.YearlyFeeAmount.Round()
	}

	fees.TotalAmount = money.Sum(fees.MembershipAmount, fees.JoiningFeeAmount, fees.YearlyFeeAmount)
	return fees
}

// Totals accumulates batch level sums
type Totals struct {
	Membership money.Amount
	JoiningFee money.Amount
	YearlyFee  money.Amount
	Total      money.Amount
	Count      int
}

// NewTotals returns zeroed totals
func NewTotals() Totals {
	return Totals{
		Membership: money.Zero(),
		JoiningFee: money.Zero(),
		YearlyFee:  money.Zero(),
		Total:      money.Zero(),
	}
}

// Add folds one line into the totals
func (t *Totals) Add(f Fees) {
	t.Membership = t.Membership.Add(f.MembershipAmount)
	t.JoiningFee = t.JoiningFee.Add(f.JoiningFeeAmount)
	t.YearlyFee = t.YearlyFee.Add(f.YearlyFeeAmount)
	t.Total = t.Total.Add(f.TotalAmount)
	t.Count++
}
