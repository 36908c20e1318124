package sepa

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field length limits of the pain.008 schema
const (
	MaxNameLength       = 70
	MaxIdentifierLength = 35
	MaxRemittanceLength = 140
)

// Default remittance templates per fee line
const (
	DefaultMembershipTemplate = "Membership fee for %MONTH% %YEAR%"
	DefaultJoiningFeeTemplate = "Joining fee for %MEMBER_NAME%"
	DefaultYearlyFeeTemplate  = "Annual fee for %YEAR%"
	FallbackRemittance        = "Membership fee"
	remittanceSeparator       = " / "
)

var (
	bicPattern      = regexp.MustCompile(`^[A-Z0-9]{8}([A-Z0-9]{3})?$`)
	ibanPattern     = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)
	creditorPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{3}[A-Z0-9]{1,28}$`)
	fileNameUnsafe  = regexp.MustCompile(`[^A-Za-z0-9_-]`)

	germanFolding = strings.NewReplacer(
		"ä", "ae", "ö", "oe", "ü", "ue",
		"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
		"ß", "ss",
	)
)

// ibanLengths holds the fixed IBAN length of SEPA scheme countries
var ibanLengths = map[string]int{
	"AD": 24, "AT": 20, "BE": 16, "BG": 22, "CH": 21, "CY": 28, "CZ": 24, "DE": 22,
	"DK": 18, "EE": 20, "ES": 24, "FI": 18, "FR": 27, "GB": 22, "GI": 23, "GR": 27,
	"HR": 21, "HU": 28, "IE": 22, "IS": 26, "IT": 27, "LI": 21, "LT": 20, "LU": 20,
	"LV": 21, "MC": 27, "MT": 31, "NL": 18, "NO": 15, "PL": 28, "PT": 25, "RO": 24,
	"SE": 24, "SI": 19, "SK": 24, "SM": 27, "VA": 22,
}

// isSEPAChar reports whether r is in the SEPA Latin character set
func isSEPAChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("+?/-:().,' ", r)
}

// Transliterate folds German umlauts and strips diacritics, e.g. "Müller" -> "Mueller",
// "José" -> "Jose".
func Transliterate(s string) string {
	s = germanFolding.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// SanitizeText makes free text SEPA safe: characters outside the SEPA set become spaces,
// runs of whitespace collapse and the result is clamped to max characters.
func SanitizeText(s string, max int) string {
	s = Transliterate(s)
	mapped := strings.Map(func(r rune) rune {
		if isSEPAChar(r) {
			return r
		}
		return ' '
	}, s)
	return Clamp(strings.Join(strings.Fields(mapped), " "), max)
}

// SanitizeIdentifier drops every character outside the SEPA set
func SanitizeIdentifier(s string) string {
	return strings.Map(func(r rune) rune {
		if isSEPAChar(r) {
			return r
		}
		return -1
	}, s)
}

// Clamp truncates s to at most max characters
func Clamp(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimRight(string(r[:max]), " ")
}

func clampRaw(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// Name renders a party name
func Name(s string) string {
	return SanitizeText(s, MaxNameLength)
}

// MandateID sanitizes a mandate reference, strips leading slashes and truncates it to 35
// characters.
func MandateID(s string) string {
	return clampRaw(strings.TrimLeft(SanitizeIdentifier(s), "/"), MaxIdentifierLength)
}

// EndToEndID builds the per-transaction reference "<label>.<paymentID>". When that exceeds
// 35 characters it becomes the first 20 characters of the label, a dot and the first 14
// hex digits of the payment id.
func EndToEndID(batchLabel string, paymentID uuid.UUID) string {
	raw := batchLabel + "." + paymentID.String()
	if len([]rune(raw)) > MaxIdentifierLength {
		hex := strings.ReplaceAll(paymentID.String(), "-", "")
		raw = clampRaw(batchLabel, 20) + "." + hex[:14]
	}
	return clampRaw(SanitizeIdentifier(raw), MaxIdentifierLength)
}

// MessageID renders the group header and payment information id
func MessageID(batchLabel string) string {
	return clampRaw(SanitizeIdentifier(batchLabel), MaxIdentifierLength)
}

// FileName returns the download name of an export, e.g. "sepa-B202501-1A2B3C4D.xml"
func FileName(batchLabel string) string {
	return "sepa-" + fileNameUnsafe.ReplaceAllString(batchLabel, "-") + ".xml"
}

// RemittanceTemplates are the organization's remittance texts. Nil means the default.
type RemittanceTemplates struct {
	Membership *string
	JoiningFee *string
	YearlyFee  *string
}

// RemittanceLine is the input of one transaction's remittance text
type RemittanceLine struct {
	BillingMonth      time.Time
	MemberName        string
	MemberNumber      string
	JoinDate          time.Time
	MembershipCharged bool
	JoiningCharged    bool
	YearlyCharged     bool
}

// Remittance renders the unstructured remittance text of one transaction: the templates of
// every non-zero fee line joined by " / " and clamped to 140 characters.
func Remittance(templates RemittanceTemplates, line RemittanceLine) string {
	var parts []string
	if line.MembershipCharged {
		parts = append(parts, renderTemplate(templateOr(templates.Membership, DefaultMembershipTemplate), line))
	}
	if line.JoiningCharged {
		parts = append(parts, renderTemplate(templateOr(templates.JoiningFee, DefaultJoiningFeeTemplate), line))
	}
	if line.YearlyCharged {
		parts = append(parts, renderTemplate(templateOr(templates.YearlyFee, DefaultYearlyFeeTemplate), line))
	}
	if len(parts) == 0 {
		return FallbackRemittance
	}

	text := SanitizeText(strings.Join(parts, remittanceSeparator), MaxRemittanceLength)
	if text == "" {
		return FallbackRemittance
	}
	return text
}

func templateOr(t *string, fallback string) string {
	if t == nil || strings.TrimSpace(*t) == "" {
		return fallback
	}
	return *t
}

func renderTemplate(tpl string, line RemittanceLine) string {
	joinDate := ""
	if !line.JoinDate.IsZero() {
		joinDate = line.JoinDate.Format("2006-01-02")
	}
	return strings.NewReplacer(
		"%MONTH%", line.BillingMonth.Month().String(),
		"%YEAR%", fmt.Sprintf("%d", line.BillingMonth.Year()),
		"%MEMBER_NAME%", line.MemberName,
		"%MEMBER_ID%", line.MemberNumber,
		"%JOIN_DATE%", joinDate,
	).Replace(tpl)
}

// NormalizeIBAN removes spaces and upper-cases an IBAN
func NormalizeIBAN(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// NormalizeBIC trims and upper-cases a BIC
func NormalizeBIC(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ErrInvalidIBAN and friends describe validation failures
var (
	ErrInvalidIBAN       = errors.New("invalid IBAN")
	ErrInvalidBIC        = errors.New("invalid BIC")
	ErrInvalidCreditorID = errors.New("invalid creditor identifier")
)

// ValidateIBAN checks format, country length and the ISO 7064 mod 97-10 checksum
func ValidateIBAN(iban string) error {
	iban = NormalizeIBAN(iban)
	if !ibanPattern.MatchString(iban) {
		return fmt.Errorf("%w: malformed", ErrInvalidIBAN)
	}
	if want, ok := ibanLengths[iban[:2]]; ok && len(iban) != want {
		return fmt.Errorf("%w: %s IBANs have %d characters", ErrInvalidIBAN, iban[:2], want)
	}
	if mod97(iban[4:]+iban[:4]) != 1 {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidIBAN)
	}
	return nil
}

// ValidateBIC checks the 8 or 11 character BIC format
func ValidateBIC(bic string) error {
	if !bicPattern.MatchString(NormalizeBIC(bic)) {
		return ErrInvalidBIC
	}
	return nil
}

// ValidateCreditorID checks a SEPA creditor identifier. The check digits at positions 3-4
// are computed over the national identifier (from position 8 on) followed by the country
// code and "00"; the creditor business code at positions 5-7 is not part of the checksum.
func ValidateCreditorID(id string) error {
	id = NormalizeIBAN(id)
	if !creditorPattern.MatchString(id) {
		return fmt.Errorf("%w: malformed", ErrInvalidCreditorID)
	}

	remainder := mod97(id[7:] + id[:2] + "00")
	if remainder < 0 {
		return fmt.Errorf("%w: malformed", ErrInvalidCreditorID)
	}
	check := fmt.Sprintf("%02d", 98-remainder)
	if check != id[2:4] {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidCreditorID)
	}
	return nil
}

// mod97 converts letters to numbers (A=10 ... Z=35) and returns the value mod 97, or -1
// for characters outside [0-9A-Z].
func mod97(s string) int {
	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			fmt.Fprintf(&digits, "%d", r-'A'+10)
		default:
			return -1
		}
	}

	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return -1
	}
	return int(new(big.Int).Mod(n, big.NewInt(97)).Int64())
}
