// Package categorize assigns expense categories to parsed receipts.
//
// The parsing core only depends on the Categorizer interface; rule-based
// and LLM-backed implementations are interchangeable.
package categorize

import (
	"fmt"
	"strings"

	"github.com/ledgerlens/ledgerlens/internal/parse"
)

// Category is an expense category label.
type Category string

// Other is the fallback when no category applies.
const Other Category = "Other"

// DefaultCategories is the built-in taxonomy.
var DefaultCategories = []Category{
	"Food & Dining",
	"Groceries",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Healthcare",
	"Utilities",
	"Office Supplies",
	"Travel",
	Other,
}

// Categorizer maps a resolved receipt to an expense category. Any
// implementation of this single-method contract plugs into the service.
type Categorizer interface {
	// Categorize assigns a category to the receipt.
	Categorize(receipt parse.Receipt) (Category, error)
	// Close releases provider resources.
	Close() error
}

// categoryPrompt renders a receipt into an LLM prompt asking for exactly
// one label out of the allowed set.
func categoryPrompt(r parse.Receipt, categories []Category) string {
	var b strings.Builder
	b.WriteString("Assign exactly one expense category to this receipt.\n\nReceipt:\n")
	if r.Merchant != "" {
		fmt.Fprintf(&b, "Merchant: %s\n", r.Merchant)
	}
	if r.Date != nil {
		fmt.Fprintf(&b, "Date: %s\n", r.Date.Format("2006-01-02"))
	}
	for _, item := range r.Items {
		fmt.Fprintf(&b, "Item: %s (%s)\n", item.Description, item.Amount)
	}
	if r.Total != nil {
		fmt.Fprintf(&b, "Total: %s\n", r.Total)
	}
	b.WriteString("\nAllowed categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nRespond with the category name only. No explanation, no markdown.")
	return b.String()
}

// matchCategory maps a model response onto the allowed set. Responses are
// trimmed of markdown fences and quotes; unmatched responses fall back to
// Other.
func matchCategory(text string, categories []Category) Category {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.Trim(text, "\"' \n")

	for _, c := range categories {
		if strings.EqualFold(text, string(c)) {
			return c
		}
	}
	lower := strings.ToLower(text)
	for _, c := range categories {
		if strings.Contains(lower, strings.ToLower(string(c))) {
			return c
		}
	}
	return Other
}
