package sepa

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTransliterate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Müller", "Mueller"},
		{"Größe", "Groesse"},
		{"José", "Jose"},
		{"Françoise Châtelet", "Francoise Chatelet"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Transliterate(tt.in))
		})
	}
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Anna Mueller Soehne", SanitizeText("Anna  Müller & Söhne", MaxNameLength))
	assert.Equal(t, "a+b?c/d-e:f(g)h.i,j'k", SanitizeText("a+b?c/d-e:f(g)h.i,j'k", MaxNameLength))
	assert.Equal(t, "tab separated", SanitizeText("\ttab\tseparated\n", MaxNameLength))
	assert.Equal(t, "abc", SanitizeText("abc def", 4))
	assert.Len(t, SanitizeText(strings.Repeat("x", 200), MaxNameLength), MaxNameLength)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, "abc", Clamp("abcdef", 3))
	assert.Equal(t, "ab", Clamp("ab cd", 3))
	assert.Equal(t, "short", Clamp("short", 35))
	assert.Equal(t, "", Clamp("anything", 0))
	assert.Equal(t, "Mü", Clamp("Müller", 2))
}

func TestMandateID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "MND-2025-001", "MND-2025-001"},
		{"leading slashes", "//MND-001", "MND-001"},
		{"disallowed characters", "MND_001#x", "MND001x"},
		{"umlaut dropped", "MÜ-1", "M-1"},
		{"truncated", strings.Repeat("A", 40), strings.Repeat("A", 35)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MandateID(tt.in))
		})
	}
}

func TestEndToEndID(t *testing.T) {
	paymentID := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")

	t.Run("batch number label", func(t *testing.T) {
		got := EndToEndID("B202501-1A2B3C4D", paymentID)
		assert.Equal(t, "B202501-1A2B3C4D.123e4567e89b12", got)
	})

	t.Run("long label keeps first 20 characters", func(t *testing.T) {
		got := EndToEndID("ABCDEFGHIJKLMNOPQRSTUVWXYZ1234", paymentID)
		assert.Equal(t, "ABCDEFGHIJKLMNOPQRST.123e4567e89b12", got)
		assert.Len(t, got, MaxIdentifierLength)
	})

	t.Run("label with unsafe characters", func(t *testing.T) {
		got := EndToEndID("B_2025#01", paymentID)
		assert.Equal(t, "B202501.123e4567e89b12", got)
	})

	t.Run("never exceeds 35 characters", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			label := strings.Repeat("L", i)
			assert.LessOrEqual(t, len(EndToEndID(label, uuid.New())), MaxIdentifierLength)
		}
	})
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, "B202501-1A2B3C4D", MessageID("B202501-1A2B3C4D"))
	assert.Len(t, MessageID(uuid.NewString()), MaxIdentifierLength)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "sepa-B202501-1A2B3C4D.xml", FileName("B202501-1A2B3C4D"))
	assert.Equal(t, "sepa-B2025-01-x.xml", FileName("B2025/01 x"))
	assert.Equal(t, "sepa-batch_1.xml", FileName("batch_1"))
}

func TestRemittance(t *testing.T) {
	line := RemittanceLine{
		BillingMonth: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		MemberName:   "Anna Müller",
		MemberNumber: "M-17",
		JoinDate:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}

	t.Run("all fee lines with defaults", func(t *testing.T) {
		l := line
		l.MembershipCharged, l.JoiningCharged, l.YearlyCharged = true, true, true
		assert.Equal(t,
			"Membership fee for January 2025 / Joining fee for Anna Mueller / Annual fee for 2025",
			Remittance(RemittanceTemplates{}, l))
	})

	t.Run("membership only", func(t *testing.T) {
		l := line
		l.MembershipCharged = true
		assert.Equal(t, "Membership fee for January 2025", Remittance(RemittanceTemplates{}, l))
	})

	t.Run("no charged line falls back", func(t *testing.T) {
		assert.Equal(t, FallbackRemittance, Remittance(RemittanceTemplates{}, line))
	})

	t.Run("custom template placeholders", func(t *testing.T) {
		l := line
		l.MembershipCharged = true
		templates := RemittanceTemplates{Membership: strPtr("Beitrag %MONTH%/%YEAR% Nr. %MEMBER_ID% seit %JOIN_DATE%")}
		assert.Equal(t, "Beitrag January/2025 Nr. M-17 seit 2024-03-15", Remittance(templates, l))
	})

	t.Run("blank template uses default", func(t *testing.T) {
		l := line
		l.YearlyCharged = true
		assert.Equal(t, "Annual fee for 2025", Remittance(RemittanceTemplates{YearlyFee: strPtr("  ")}, l))
	})

	t.Run("clamped to 140 characters", func(t *testing.T) {
		l := line
		l.MembershipCharged = true
		got := Remittance(RemittanceTemplates{Membership: strPtr(strings.Repeat("x", 200))}, l)
		assert.Len(t, got, MaxRemittanceLength)
	})

	t.Run("template of only unsafe characters falls back", func(t *testing.T) {
		l := line
		l.MembershipCharged = true
		assert.Equal(t, FallbackRemittance, Remittance(RemittanceTemplates{Membership: strPtr("€€€")}, l))
	})
}

func TestValidateIBAN(t *testing.T) {
	valid := []string{
		"DE89370400440532013000",
		"GB82WEST12345698765432",
		"NL91ABNA0417164300",
		"FR1420041010050500013M02606",
		"AT611904300234573201",
		"BE68539007547034",
		"ES9121000418450200051332",
		"DE89 3704 0044 0532 0130 00",
		"de89370400440532013000",
	}
	for _, iban := range valid {
		t.Run(iban, func(t *testing.T) {
			assert.NoError(t, ValidateIBAN(iban))
		})
	}

	invalid := map[string]string{
		"checksum":       "DE89370400440532013001",
		"country length": "DE8937040044053201300",
		"malformed":      "1234",
		"empty":          "",
		"symbols":        "DE89-3704-0044-0532-0130-00",
	}
	for name, iban := range invalid {
		t.Run(name, func(t *testing.T) {
			err := ValidateIBAN(iban)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidIBAN)
		})
	}
}

func TestValidateBIC(t *testing.T) {
	assert.NoError(t, ValidateBIC("COBADEFFXXX"))
	assert.NoError(t, ValidateBIC("COBADEFF"))
	assert.NoError(t, ValidateBIC(" cobadeffxxx "))
	assert.ErrorIs(t, ValidateBIC("COBADEF"), ErrInvalidBIC)
	assert.ErrorIs(t, ValidateBIC("COBADEFFXX"), ErrInvalidBIC)
	assert.ErrorIs(t, ValidateBIC(""), ErrInvalidBIC)
}

func TestValidateCreditorID(t *testing.T) {
	for _, id := range []string{"DE98ZZZ09999999999", "NL79ZZZ999999990000", "AT61ZZZ01234567890", "de98 zzz0 9999 9999 99"} {
		t.Run(id, func(t *testing.T) {
			assert.NoError(t, ValidateCreditorID(id))
		})
	}

	assert.ErrorIs(t, ValidateCreditorID("DE98ZZZ09999999998"), ErrInvalidCreditorID)
	assert.ErrorIs(t, ValidateCreditorID("DE98"), ErrInvalidCreditorID)
	assert.ErrorIs(t, ValidateCreditorID(""), ErrInvalidCreditorID)
}
