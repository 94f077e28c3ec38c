package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type PaymentKind int

const (
	PaymentReserved PaymentKind = iota
	PaymentDeposit
	PaymentPaid
	PaymentOther
)

// Labels used by the front desk and stored by every adapter.
const (
	LabelReserved = "Falta abonar"
	LabelDeposit  = "Seña"
	LabelPaid     = "Pagó"
)

// Tone is the colour family a payment status is displayed with.
type Tone string

const (
	ToneUnpaid  Tone = "red"
	TonePartial Tone = "yellow"
	TonePaid    Tone = "green"
)

// PaymentStatus is a closed variant. The zero value is PaymentReserved.
type PaymentStatus struct {
	kind PaymentKind
	text string
}

func Reserved() PaymentStatus { return PaymentStatus{kind: PaymentReserved} }
func Deposit() PaymentStatus  { return PaymentStatus{kind: PaymentDeposit} }
func Paid() PaymentStatus     { return PaymentStatus{kind: PaymentPaid} }

// OtherPayment keeps a free-form status that none of the known labels matched.
func OtherPayment(text string) PaymentStatus {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reserved()
	}
	return PaymentStatus{kind: PaymentOther, text: text}
}

var paymentAliases = map[string]PaymentKind{
	"":             PaymentReserved,
	"falta abonar": PaymentReserved,
	"reservado":    PaymentReserved,
	"reserved":     PaymentReserved,
	"sena":         PaymentDeposit,
	"deposit":      PaymentDeposit,
	"pago":         PaymentPaid,
	"pagado":       PaymentPaid,
	"paid":         PaymentPaid,
}

// ParsePayment maps a stored or typed label onto the variant. Matching ignores case
// and diacritics, so "PAGO" and "pagó" are both Paid.
func ParsePayment(s string) PaymentStatus {
	if kind, ok := paymentAliases[foldLabel(s)]; ok {
		return PaymentStatus{kind: kind}
	}
	return OtherPayment(s)
}

func foldLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

func (p PaymentStatus) Kind() PaymentKind { return p.kind }

func (p PaymentStatus) Label() string {
	switch p.kind {
	case PaymentDeposit:
		return LabelDeposit
	case PaymentPaid:
		return LabelPaid
	case PaymentOther:
		return p.text
	default:
		return LabelReserved
	}
}

func (p PaymentStatus) String() string { return p.Label() }

func (p PaymentStatus) Tone() Tone {
	switch p.kind {
	case PaymentPaid:
		return TonePaid
	case PaymentDeposit:
		return TonePartial
	default:
		return ToneUnpaid
	}
}

func (p PaymentStatus) MarshalText() ([]byte, error) {
	return []byte(p.Label()), nil
}

func (p *PaymentStatus) UnmarshalText(b []byte) error {
	*p = ParsePayment(string(b))
	return nil
}
