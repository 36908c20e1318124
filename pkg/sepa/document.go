package sepa

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/clubdues/clubdues/pkg/money"
)

// Namespace of the Customer Direct Debit Initiation message, version 8
const Namespace = "urn:iso:std:iso:20022:tech:xsd:pain.008.001.08"

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05"

	paymentMethodDirectDebit = "DD"
	serviceLevelSEPA         = "SEPA"
	localInstrumentCore      = "CORE"
	sequenceTypeRecurring    = "RCUR"
	chargeBearerSLEV         = "SLEV"
	schemeNameSEPA           = "SEPA"
	currencyEUR              = "EUR"
)

// Creditor is the collecting party of a file
type Creditor struct {
	Name          string
	IBAN          string
	BIC           string
	CreditorID    string
	InitiatorName string
}

// Transaction is one direct debit
type Transaction struct {
	EndToEndID    string
	Amount        money.Amount
	MandateID     string
	MandateSigned time.Time
	DebtorName    string
	DebtorIBAN    string
	DebtorBIC     string
	Remittance    string
}

// Collection is everything needed to render one pain.008 document
type Collection struct {
	MessageID      string
	CreatedAt      time.Time
	CollectionDate time.Time
	BatchBooking   *bool
	Creditor       Creditor
	Transactions   []Transaction
}

// ControlSum is the sum of all transaction amounts
func (c *Collection) ControlSum() money.Amount {
	total := money.Zero()
	for _, tx := range c.Transactions {
		total = total.Add(tx.Amount)
	}
	return total
}

type document struct {
	XMLName xml.Name          `xml:"Document"`
	Xmlns   string            `xml:"xmlns,attr"`
	Initn   customerDDInitiat `xml:"CstmrDrctDbtInitn"`
}

type customerDDInitiat struct {
	GroupHeader groupHeader `xml:"GrpHdr"`
	PaymentInfo paymentInfo `xml:"PmtInf"`
}

type groupHeader struct {
	MsgID          string    `xml:"MsgId"`
	CreDtTm        string    `xml:"CreDtTm"`
	NbOfTxs        string    `xml:"NbOfTxs"`
	CtrlSum        string    `xml:"CtrlSum"`
	InitiatingName partyName `xml:"InitgPty"`
}

type partyName struct {
	Name string `xml:"Nm"`
}

type paymentInfo struct {
	PmtInfID       string              `xml:"PmtInfId"`
	PmtMtd         string              `xml:"PmtMtd"`
	BtchBookg      *bool               `xml:"BtchBookg,omitempty"`
	NbOfTxs        string              `xml:"NbOfTxs"`
	CtrlSum        string              `xml:"CtrlSum"`
	PmtTpInf       paymentTypeInfo     `xml:"PmtTpInf"`
	ReqdColltnDt   string              `xml:"ReqdColltnDt"`
	Creditor       partyName           `xml:"Cdtr"`
	CreditorAcct   account             `xml:"CdtrAcct"`
	CreditorAgent  agent               `xml:"CdtrAgt"`
	ChargeBearer   string              `xml:"ChrgBr"`
	CreditorScheme creditorSchemeID    `xml:"CdtrSchmeId"`
	Transactions   []directDebitTxInfo `xml:"DrctDbtTxInf"`
}

type paymentTypeInfo struct {
	ServiceLevel    code   `xml:"SvcLvl"`
	LocalInstrument code   `xml:"LclInstrm"`
	SequenceType    string `xml:"SeqTp"`
}

type code struct {
	Cd string `xml:"Cd"`
}

type account struct {
	IBAN string `xml:"Id>IBAN"`
}

type agent struct {
	BICFI string `xml:"FinInstnId>BICFI"`
}

type creditorSchemeID struct {
	ID     string `xml:"Id>PrvtId>Othr>Id"`
	Scheme string `xml:"Id>PrvtId>Othr>SchmeNm>Prtry"`
}

type directDebitTxInfo struct {
	EndToEndID   string         `xml:"PmtId>EndToEndId"`
	Amount       instructedAmt  `xml:"InstdAmt"`
	Mandate      mandateRelated `xml:"DrctDbtTx>MndtRltdInf"`
	DebtorAgent  agent          `xml:"DbtrAgt"`
	Debtor       partyName      `xml:"Dbtr"`
	DebtorAcct   account        `xml:"DbtrAcct"`
	Unstructured string         `xml:"RmtInf>Ustrd"`
}

type instructedAmt struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

type mandateRelated struct {
	MandateID     string `xml:"MndtId"`
	DateOfSigning string `xml:"DtOfSgntr"`
}

// Render serializes the collection as an indented pain.008.001.08 document
func Render(c *Collection) ([]byte, error) {
	count := strconv.Itoa(len(c.Transactions))
	ctrlSum := c.ControlSum().String()

	// Creditor and initiator names come from the organization's own settings and are
	// rendered as entered; only debtor names are transliterated.
	initiator := c.Creditor.InitiatorName
	if initiator == "" {
		initiator = c.Creditor.Name
	}

	doc := document{
		Xmlns: Namespace,
		Initn: customerDDInitiat{
			GroupHeader: groupHeader{
				MsgID:          c.MessageID,
				CreDtTm:        c.CreatedAt.Format(dateTimeLayout),
				NbOfTxs:        count,
				CtrlSum:        ctrlSum,
				InitiatingName: partyName{Name: Clamp(initiator, MaxNameLength)},
			},
			PaymentInfo: paymentInfo{
				PmtInfID:  c.MessageID,
				PmtMtd:    paymentMethodDirectDebit,
				BtchBookg: c.BatchBooking,
				NbOfTxs:   count,
				CtrlSum:   ctrlSum,
				PmtTpInf: paymentTypeInfo{
					ServiceLevel:    code{Cd: serviceLevelSEPA},
					LocalInstrument: code{Cd: localInstrumentCore},
					SequenceType:    sequenceTypeRecurring,
				},
				ReqdColltnDt:   c.CollectionDate.Format(dateLayout),
				Creditor:       partyName{Name: Clamp(c.Creditor.Name, MaxNameLength)},
				CreditorAcct:   account{IBAN: NormalizeIBAN(c.Creditor.IBAN)},
				CreditorAgent:  agent{BICFI: NormalizeBIC(c.Creditor.BIC)},
				ChargeBearer:   chargeBearerSLEV,
				CreditorScheme: creditorSchemeID{ID: NormalizeIBAN(c.Creditor.CreditorID), Scheme: schemeNameSEPA},
				Transactions:   make([]directDebitTxInfo, 0, len(c.Transactions)),
			},
		},
	}

	for _, tx := range c.Transactions {
		doc.Initn.PaymentInfo.Transactions = append(doc.Initn.PaymentInfo.Transactions, directDebitTxInfo{
			EndToEndID: tx.EndToEndID,
			Amount:     instructedAmt{Currency: currencyEUR, Value: tx.Amount.String()},
			Mandate: mandateRelated{
				MandateID:     tx.MandateID,
				DateOfSigning: tx.MandateSigned.Format(dateLayout),
			},
			DebtorAgent:  agent{BICFI: NormalizeBIC(tx.DebtorBIC)},
			Debtor:       partyName{Name: Name(tx.DebtorName)},
			DebtorAcct:   account{IBAN: NormalizeIBAN(tx.DebtorIBAN)},
			Unstructured: tx.Remittance,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pain.008 document: %w", err)
	}

	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}
