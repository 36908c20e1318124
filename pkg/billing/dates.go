package billing

import (
	"strings"
	"time"
)

// BillingMonthLayout is the wire format of a billing month
const BillingMonthLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns the first calendar day of t's month
func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// IsBillingMonth reports whether t is the first calendar day of a month
func IsBillingMonth(t time.Time) bool {
	return t.Day() == 1
}

// ParseBillingMonth parses "YYYY-MM-01". Any other day of month is rejected.
func ParseBillingMonth(s string) (time.Time, error) {
	t, err := time.Parse(BillingMonthLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, InvalidInput("billing month must be formatted as YYYY-MM-01")
	}
	if !IsBillingMonth(t) {
		return time.Time{}, InvalidInput("billing month must be the first day of a month, got %s", s)
	}
	return t, nil
}

// LastDayOfMonth returns the last calendar day of t's month, leap years included
func LastDayOfMonth(t time.Time) time.Time {
	return FirstOfMonth(t).AddDate(0, 1, -1)
}

// NextBillingMonth returns the first day of the month following t
func NextBillingMonth(t time.Time) time.Time {
	return FirstOfMonth(t).AddDate(0, 1, 0)
}

// IsEligible reports whether the contract is billable for billingMonth:
// it has started, its next billing date has been reached, and it is not cancelled
// effective before the month.
func IsEligible(c *Contract, billingMonth time.Time) bool {
	month := DateOnly(billingMonth)
	if DateOnly(c.StartDate).After(month) {
		return false
	}
	if DateOnly(c.NextBillingDate).After(month) {
		return false
	}
	if c.CancellationEffectiveDate != nil && DateOnly(*c.CancellationEffectiveDate).Before(month) {
		return false
	}
	return true
}

// IsYearlyFeeDue reports whether the annual fee is owed in billingMonth.
// The fee is only charged in January and at most once per calendar year.
func IsYearlyFeeDue(c *Contract, billingMonth time.Time) bool {
	if billingMonth.Month() != time.January {
		return false
	}
	return c.LastYearlyFeePaidYear == nil || *c.LastYearlyFeePaidYear != billingMonth.Year()
}

// IsJoiningFeeDue reports whether the one-time joining fee is still owed
func IsJoiningFeeDue(c *Contract) bool {
	return c.JoiningFeePaidAt == nil && c.JoiningFeeAmount != nil && c.JoiningFeeAmount.IsPositive()
}

func joinName(first, last string) string {
	return strings.Join(strings.Fields(first+" "+last), " ")
}
