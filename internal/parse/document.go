// Package parse turns noisy OCR output into a structured receipt record.
//
// The pipeline has three stages: Normalizer cleans raw lines, Extractor
// emits candidate fields without discarding alternatives, and Resolver
// reconciles candidates against arithmetic constraints. Every stage is a
// pure transform that never fails; bad input degrades into flags and low
// confidence, never into an error.
package parse

import (
	"fmt"
	"time"

	"github.com/ledgerlens/ledgerlens/internal/ocr"
)

// Flag marks a soft problem on a resolved receipt. Flags are advisory: the
// caller decides whether to accept, reject, or queue for human review.
type Flag string

const (
	// FlagEmptyInput marks a receipt produced from a document with no
	// usable lines.
	FlagEmptyInput Flag = "empty-input"
	// FlagArithmeticMismatch marks a receipt whose item/tax/subtotal/total
	// sums do not reconcile within tolerance.
	FlagArithmeticMismatch Flag = "arithmetic-mismatch"
	// FlagAmbiguousDate marks a date whose day/month order could not be
	// determined from the document.
	FlagAmbiguousDate Flag = "ambiguous-date"
	// FlagMissingTotal marks a receipt with no recognized total.
	FlagMissingTotal Flag = "missing-total"
	// FlagNoLineItems marks a receipt with no recognized line items.
	FlagNoLineItems Flag = "no-line-items"
)

// Amount is a currency amount in minor units (cents).
type Amount int64

// Float returns the amount in major units.
func (a Amount) Float() float64 {
	return float64(a) / 100
}

func (a Amount) String() string {
	neg := ""
	v := int64(a)
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}

// NormalizedLine is a cleaned text line with provenance back to the raw
// document for traceability.
type NormalizedLine struct {
	Text       string
	Box        ocr.Box
	Source     int // index of the originating raw line
	Confidence float64
}

// NormalizedDocument is the output of the Normalizer: ordered cleaned
// lines, top to bottom.
type NormalizedDocument struct {
	Lines []NormalizedLine
}

// Kind identifies the semantic field a candidate was extracted for.
type Kind int

const (
	KindMerchant Kind = iota
	KindDate
	KindLineItem
	KindSubtotal
	KindTax
	KindTotal
)

func (k Kind) String() string {
	switch k {
	case KindMerchant:
		return "merchant"
	case KindDate:
		return "date"
	case KindLineItem:
		return "line-item"
	case KindSubtotal:
		return "subtotal"
	case KindTax:
		return "tax"
	case KindTotal:
		return "total"
	}
	return "unknown"
}

// LineItem is one purchased item on a receipt.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Amount `json:"unit_price"`
	Amount      Amount `json:"amount"`
}

// Candidate is a provisional extraction for one field. Several candidates
// per kind may coexist until the Resolver picks between them. Which value
// field is meaningful depends on Kind.
type Candidate struct {
	Kind       Kind
	Line       int // normalized line index
	Confidence float64
	Text       string    // KindMerchant
	Date       time.Time // KindDate
	Amount     Amount    // KindSubtotal, KindTax, KindTotal
	Item       LineItem  // KindLineItem
}

// Receipt is the resolved record handed to downstream collaborators.
// Pointer money fields are nil when the document never yielded a value.
type Receipt struct {
	Merchant   string     `json:"merchant,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Items      []LineItem `json:"items"`
	Subtotal   *Amount    `json:"subtotal,omitempty"`
	Tax        *Amount    `json:"tax,omitempty"`
	Total      *Amount    `json:"total,omitempty"`
	Confidence float64    `json:"confidence"`
	Flags      []Flag     `json:"flags,omitempty"`
}

// HasFlag reports whether the receipt carries the given flag.
func (r Receipt) HasFlag(f Flag) bool {
	for _, have := range r.Flags {
		if have == f {
			return true
		}
	}
	return false
}
