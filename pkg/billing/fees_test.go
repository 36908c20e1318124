package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clubdues/clubdues/pkg/money"
)

func amountPtr(s string) *money.Amount {
	a := money.MustParse(s)
	return &a
}

func TestCalculateFees(t *testing.T) {
	paidAt := date(2025, time.January, 1)
	year2025 := 2025

	tests := []struct {
		name       string
		contract   Contract
		membership string
		month      time.Time
		want       [4]string
	}{
		{
			name: "first january bill charges everything",
			contract: Contract{
				JoiningFeeAmount: amountPtr("50.00"),
				YearlyFeeAmount:  amountPtr("120.00"),
			},
			membership: "30.00",
			month:      date(2025, time.January, 1),
			want:       [4]string{"30.00", "50.00", "120.00", "200.00"},
		},
		{
			name: "february after full january bill",
			contract: Contract{
				JoiningFeeAmount:      amountPtr("50.00"),
				YearlyFeeAmount:       amountPtr("120.00"),
				JoiningFeePaidAt:      &paidAt,
				LastYearlyFeePaidYear: &year2025,
			},
			membership: "30.00",
			month:      date(2025, time.February, 1),
			want:       [4]string{"30.00", "0.00", "0.00", "30.00"},
		},
		{
			name:       "yearly fee not charged outside january",
			contract:   Contract{YearlyFeeAmount: amountPtr("120.00")},
			membership: "15.00",
			month:      date(2025, time.June, 1),
			want:       [4]string{"15.00", "0.00", "0.00", "15.00"},
		},
		{
			name:       "membership rounded half up",
			contract:   Contract{},
			membership: "10.005",
			month:      date(2025, time.March, 1),
			want:       [4]string{"10.01", "0.00", "0.00", "10.01"},
		},
		{
			name:       "zero line",
			contract:   Contract{},
			membership: "0",
			month:      date(2025, time.March, 1),
			want:       [4]string{"0.00", "0.00", "0.00", "0.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fees := CalculateFees(&tt.contract, money.MustParse(tt.membership), tt.month)
			assert.Equal(t, tt.want[0], fees.MembershipAmount.String())
			assert.Equal(t, tt.want[1], fees.JoiningFeeAmount.String())
			assert.Equal(t, tt.want[2], fees.YearlyFeeAmount.String())
			assert.Equal(t, tt.want[3], fees.TotalAmount.String())
			assert.True(t, fees.TotalAmount.Equal(money.Sum(fees.MembershipAmount, fees.JoiningFeeAmount, fees.YearlyFeeAmount)))
		})
	}
}

func TestTotals_Add(t *testing.T) {
	totals := NewTotals()
	totals.Add(Fees{
		MembershipAmount: money.MustParse("30.00"),
		JoiningFeeAmount: money.MustParse("50.00"),
		YearlyFeeAmount:  money.MustParse("120.00"),
		TotalAmount:      money.MustParse("200.00"),
	})
	totals.Add(Fees{
		MembershipAmount: money.MustParse("12.50"),
		JoiningFeeAmount: money.Zero(),
		YearlyFeeAmount:  money.Zero(),
		TotalAmount:      money.MustParse("12.50"),
	})

	assert.Equal(t, 2, totals.Count)
	assert.Equal(t, "42.50", totals.Membership.String())
	assert.Equal(t, "50.00", totals.JoiningFee.String())
	assert.Equal(t, "120.00", totals.YearlyFee.String())
	assert.Equal(t, "212.50", totals.Total.String())
}
