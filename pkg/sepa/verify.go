package sepa

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/clubdues/clubdues/pkg/money"
)

// lengthRule bounds the text of every element at path
type lengthRule struct {
	path string
	max  int
}

var lengthRules = []lengthRule{
	{"./CstmrDrctDbtInitn/GrpHdr/MsgId", MaxIdentifierLength},
	{"./CstmrDrctDbtInitn/GrpHdr/InitgPty/Nm", MaxNameLength},
	{"./CstmrDrctDbtInitn/PmtInf/PmtInfId", MaxIdentifierLength},
	{"./CstmrDrctDbtInitn/PmtInf/Cdtr/Nm", MaxNameLength},
	{"./CstmrDrctDbtInitn/PmtInf/DrctDbtTxInf/PmtId/EndToEndId", MaxIdentifierLength},
	{"./CstmrDrctDbtInitn/PmtInf/DrctDbtTxInf/DrctDbtTx/MndtRltdInf/MndtId", MaxIdentifierLength},
	{"./CstmrDrctDbtInitn/PmtInf/DrctDbtTxInf/Dbtr/Nm", MaxNameLength},
	{"./CstmrDrctDbtInitn/PmtInf/DrctDbtTxInf/RmtInf/Ustrd", MaxRemittanceLength},
}

// Verify re-parses a rendered document and checks the structural rules banks enforce:
// namespace, transaction counts, control sums, mandatory identifiers and field lengths.
func Verify(data []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return fmt.Errorf("document is not well-formed: %w", err)
	}

	root := doc.SelectElement("Document")
	if root == nil {
		return errors.New("missing Document root")
	}
	if ns := root.SelectAttrValue("xmlns", ""); ns != Namespace {
		return fmt.Errorf("unexpected namespace %q", ns)
	}

	pmtInfs := root.FindElements("./CstmrDrctDbtInitn/PmtInf")
	if len(pmtInfs) != 1 {
		return fmt.Errorf("expected exactly one PmtInf, found %d", len(pmtInfs))
	}
	pmtInf := pmtInfs[0]

	txs := pmtInf.SelectElements("DrctDbtTxInf")
	if len(txs) == 0 {
		return errors.New("document contains no transactions")
	}

	sum := money.Zero()
	for i, tx := range txs {
		amount, err := requiredText(tx, "InstdAmt")
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i+1, err)
		}
		if ccy := tx.FindElement("InstdAmt").SelectAttrValue("Ccy", ""); ccy != currencyEUR {
			return fmt.Errorf("transaction %d: unsupported currency %q", i+1, ccy)
		}
		parsed, err := money.Parse(amount)
		if err != nil || !parsed.IsPositive() {
			return fmt.Errorf("transaction %d: amount %q is not positive", i+1, amount)
		}
		sum = sum.Add(parsed)

		for _, path := range []string{"PmtId/EndToEndId", "DrctDbtTx/MndtRltdInf/MndtId", "DbtrAcct/Id/IBAN", "DbtrAgt/FinInstnId/BICFI", "Dbtr/Nm"} {
			if _, err := requiredText(tx, path); err != nil {
				return fmt.Errorf("transaction %d: %w", i+1, err)
			}
		}
	}

	for _, header := range []*etree.Element{root.FindElement("./CstmrDrctDbtInitn/GrpHdr"), pmtInf} {
		if header == nil {
			return errors.New("missing GrpHdr")
		}
		if err := checkCounts(header, len(txs), sum); err != nil {
			return fmt.Errorf("%s: %w", header.Tag, err)
		}
	}

	for _, rule := range lengthRules {
		for _, el := range root.FindElements(rule.path) {
			if n := utf8.RuneCountInString(el.Text()); n > rule.max {
				return fmt.Errorf("%s exceeds %d characters", el.GetPath(), rule.max)
			}
		}
	}

	return nil
}

func checkCounts(el *etree.Element, count int, sum money.Amount) error {
	nb, err := requiredText(el, "NbOfTxs")
	if err != nil {
		return err
	}
	if n, err := strconv.Atoi(nb); err != nil || n != count {
		return fmt.Errorf("NbOfTxs %q does not match %d transactions", nb, count)
	}

	ctrl, err := requiredText(el, "CtrlSum")
	if err != nil {
		return err
	}
	parsed, err := money.Parse(ctrl)
	if err != nil || !parsed.Equal(sum) {
		return fmt.Errorf("CtrlSum %q does not match transaction total %s", ctrl, sum)
	}
	return nil
}

func requiredText(el *etree.Element, path string) (string, error) {
	child := el.FindElement(path)
	if child == nil || child.Text() == "" {
		return "", fmt.Errorf("missing %s", path)
	}
	return child.Text(), nil
}
