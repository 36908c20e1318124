package sepa

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubdues/clubdues/pkg/money"
)

func testCollection() *Collection {
	return &Collection{
		MessageID:      "B202501-1A2B3C4D",
		CreatedAt:      time.Date(2025, 1, 3, 9, 30, 0, 0, time.UTC),
		CollectionDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Creditor: Creditor{
			Name:       "Turnverein Köln 1880 e.V.",
			IBAN:       "DE89 3704 0044 0532 0130 00",
			BIC:        "cobadeffxxx",
			CreditorID: "DE98ZZZ09999999999",
		},
		Transactions: []Transaction{
			{
				EndToEndID:    "B202501-1A2B3C4D.0000000000000a",
				Amount:        money.MustParse("200.00"),
				MandateID:     "MND-001",
				MandateSigned: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
				DebtorName:    "Anna Müller",
				DebtorIBAN:    "GB82WEST12345698765432",
				DebtorBIC:     "COBADEFFXXX",
				Remittance:    "Membership fee for January 2025",
			},
			{
				EndToEndID:    "B202501-1A2B3C4D.0000000000000b",
				Amount:        money.MustParse("30.5"),
				MandateID:     "MND-002",
				MandateSigned: time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
				DebtorName:    "Ben Schmidt",
				DebtorIBAN:    "NL91ABNA0417164300",
				DebtorBIC:     "ABNANL2A",
				Remittance:    "Membership fee for January 2025",
			},
		},
	}
}

func parse(t *testing.T, data []byte) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	root := doc.SelectElement("Document")
	require.NotNil(t, root)
	return root
}

func text(t *testing.T, el *etree.Element, path string) string {
	t.Helper()
	child := el.FindElement(path)
	require.NotNil(t, child, "missing %s", path)
	return child.Text()
}

func TestRender(t *testing.T) {
	data, err := Render(testCollection())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte(xml.Header)))
	assert.Contains(t, string(data), `<Document xmlns="urn:iso:std:iso:20022:tech:xsd:pain.008.001.08">`)

	root := parse(t, data)
	assert.Equal(t, Namespace, root.SelectAttrValue("xmlns", ""))

	hdr := root.FindElement("./CstmrDrctDbtInitn/GrpHdr")
	require.NotNil(t, hdr)
	assert.Equal(t, "B202501-1A2B3C4D", text(t, hdr, "MsgId"))
	assert.Equal(t, "2025-01-03T09:30:00", text(t, hdr, "CreDtTm"))
	assert.Equal(t, "2", text(t, hdr, "NbOfTxs"))
	assert.Equal(t, "230.50", text(t, hdr, "CtrlSum"))
	assert.Equal(t, "Turnverein Köln 1880 e.V.", text(t, hdr, "InitgPty/Nm"))

	pmtInfs := root.FindElements("./CstmrDrctDbtInitn/PmtInf")
	require.Len(t, pmtInfs, 1)
	pmt := pmtInfs[0]
	assert.Equal(t, "B202501-1A2B3C4D", text(t, pmt, "PmtInfId"))
	assert.Equal(t, "DD", text(t, pmt, "PmtMtd"))
	assert.Nil(t, pmt.FindElement("BtchBookg"))
	assert.Equal(t, "SEPA", text(t, pmt, "PmtTpInf/SvcLvl/Cd"))
	assert.Equal(t, "CORE", text(t, pmt, "PmtTpInf/LclInstrm/Cd"))
	assert.Equal(t, "RCUR", text(t, pmt, "PmtTpInf/SeqTp"))
	assert.Equal(t, "2025-01-01", text(t, pmt, "ReqdColltnDt"))
	assert.Equal(t, "DE89370400440532013000", text(t, pmt, "CdtrAcct/Id/IBAN"))
	assert.Equal(t, "COBADEFFXXX", text(t, pmt, "CdtrAgt/FinInstnId/BICFI"))
	assert.Equal(t, "SLEV", text(t, pmt, "ChrgBr"))
	assert.Equal(t, "DE98ZZZ09999999999", text(t, pmt, "CdtrSchmeId/Id/PrvtId/Othr/Id"))
	assert.Equal(t, "SEPA", text(t, pmt, "CdtrSchmeId/Id/PrvtId/Othr/SchmeNm/Prtry"))

	txs := pmt.SelectElements("DrctDbtTxInf")
	require.Len(t, txs, 2)
	first := txs[0]
	assert.Equal(t, "B202501-1A2B3C4D.0000000000000a", text(t, first, "PmtId/EndToEndId"))
	assert.Equal(t, "200.00", text(t, first, "InstdAmt"))
	assert.Equal(t, "EUR", first.FindElement("InstdAmt").SelectAttrValue("Ccy", ""))
	assert.Equal(t, "MND-001", text(t, first, "DrctDbtTx/MndtRltdInf/MndtId"))
	assert.Equal(t, "2024-03-15", text(t, first, "DrctDbtTx/MndtRltdInf/DtOfSgntr"))
	assert.Equal(t, "Anna Mueller", text(t, first, "Dbtr/Nm"))
	assert.Equal(t, "GB82WEST12345698765432", text(t, first, "DbtrAcct/Id/IBAN"))
	assert.Equal(t, "Membership fee for January 2025", text(t, first, "RmtInf/Ustrd"))
	assert.Equal(t, "30.50", text(t, txs[1], "InstdAmt"))

	require.NoError(t, Verify(data))
}

func TestRender_ElementOrder(t *testing.T) {
	data, err := Render(testCollection())
	require.NoError(t, err)

	pmt := parse(t, data).FindElement("./CstmrDrctDbtInitn/PmtInf")
	var tags []string
	for _, child := range pmt.ChildElements() {
		tags = append(tags, child.Tag)
	}
	assert.Equal(t, []string{
		"PmtInfId", "PmtMtd", "NbOfTxs", "CtrlSum", "PmtTpInf", "ReqdColltnDt",
		"Cdtr", "CdtrAcct", "CdtrAgt", "ChrgBr", "CdtrSchmeId", "DrctDbtTxInf", "DrctDbtTxInf",
	}, tags)

	tx := pmt.FindElement("DrctDbtTxInf")
	tags = tags[:0]
	for _, child := range tx.ChildElements() {
		tags = append(tags, child.Tag)
	}
	assert.Equal(t, []string{"PmtId", "InstdAmt", "DrctDbtTx", "DbtrAgt", "Dbtr", "DbtrAcct", "RmtInf"}, tags)
}

func TestRender_InitiatorAndBatchBooking(t *testing.T) {
	c := testCollection()
	c.Creditor.InitiatorName = "Kassenwart"
	booking := true
	c.BatchBooking = &booking

	data, err := Render(c)
	require.NoError(t, err)

	root := parse(t, data)
	assert.Equal(t, "Kassenwart", text(t, root, "./CstmrDrctDbtInitn/GrpHdr/InitgPty/Nm"))
	assert.Equal(t, "Turnverein Köln 1880 e.V.", text(t, root, "./CstmrDrctDbtInitn/PmtInf/Cdtr/Nm"))
	assert.Equal(t, "true", text(t, root, "./CstmrDrctDbtInitn/PmtInf/BtchBookg"))
}

func TestRender_CreditorNamesVerbatim(t *testing.T) {
	c := testCollection()
	c.Creditor.Name = "Schützenverein Großenhain & Umgebung e.V. " + strings.Repeat("x", 40)
	c.Creditor.InitiatorName = "Kassenwart (Jürgen)"

	data, err := Render(c)
	require.NoError(t, err)
	require.NoError(t, Verify(data))

	root := parse(t, data)
	assert.Equal(t, "Kassenwart (Jürgen)", text(t, root, "./CstmrDrctDbtInitn/GrpHdr/InitgPty/Nm"))
	creditor := text(t, root, "./CstmrDrctDbtInitn/PmtInf/Cdtr/Nm")
	assert.Equal(t, Clamp(c.Creditor.Name, MaxNameLength), creditor)
	assert.True(t, strings.HasPrefix(creditor, "Schützenverein Großenhain & Umgebung e.V."))
	assert.Len(t, []rune(creditor), MaxNameLength)
	assert.Equal(t, "Anna Mueller", text(t, root, "./CstmrDrctDbtInitn/PmtInf/DrctDbtTxInf/Dbtr/Nm"))
}

func TestRender_Deterministic(t *testing.T) {
	first, err := Render(testCollection())
	require.NoError(t, err)
	second, err := Render(testCollection())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	later := testCollection()
	later.CreatedAt = later.CreatedAt.Add(48 * time.Hour)
	third, err := Render(later)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	normalized := bytes.Replace(third, []byte("2025-01-05T09:30:00"), []byte("2025-01-03T09:30:00"), 1)
	assert.Equal(t, first, normalized)
}

func TestVerify(t *testing.T) {
	data, err := Render(testCollection())
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "transaction count",
			mutate:  func(s string) string { return strings.Replace(s, "<NbOfTxs>2</NbOfTxs>", "<NbOfTxs>3</NbOfTxs>", 1) },
			wantErr: "NbOfTxs",
		},
		{
			name:    "control sum",
			mutate:  func(s string) string { return strings.Replace(s, "<CtrlSum>230.50</CtrlSum>", "<CtrlSum>230.00</CtrlSum>", 1) },
			wantErr: "CtrlSum",
		},
		{
			name: "namespace",
			mutate: func(s string) string {
				return strings.Replace(s, "pain.008.001.08", "pain.008.001.02", 1)
			},
			wantErr: "namespace",
		},
		{
			name: "missing mandate",
			mutate: func(s string) string {
				return strings.Replace(s, "<MndtId>MND-001</MndtId>", "<MndtId></MndtId>", 1)
			},
			wantErr: "MndtId",
		},
		{
			name: "name too long",
			mutate: func(s string) string {
				return strings.Replace(s, "<Nm>Ben Schmidt</Nm>", "<Nm>"+strings.Repeat("x", 71)+"</Nm>", 1)
			},
			wantErr: "exceeds 70",
		},
		{
			name:    "not xml",
			mutate:  func(s string) string { return "<Document" },
			wantErr: "well-formed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify([]byte(tt.mutate(string(data))))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
