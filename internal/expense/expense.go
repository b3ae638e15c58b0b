package expense

import (
	"time"

	"github.com/ledgerlens/ledgerlens/internal/categorize"
	"github.com/ledgerlens/ledgerlens/internal/parse"
)

// ReviewState tracks the human-review lifecycle of an expense. Expenses
// whose parsed receipt carries flags or low confidence start out pending.
type ReviewState string

const (
	// ReviewNotNeeded marks expenses accepted without review.
	ReviewNotNeeded ReviewState = ""
	// ReviewPending marks expenses waiting for a human decision.
	ReviewPending ReviewState = "pending"
	// ReviewApproved marks expenses a human accepted as parsed.
	ReviewApproved ReviewState = "approved"
	// ReviewCorrected marks expenses a human fixed up.
	ReviewCorrected ReviewState = "corrected"
)

// Expense is the durable record around one parsed receipt.
type Expense struct {
	ID          string              `json:"id"`
	Filename    string              `json:"filename"`
	ContentType string              `json:"content_type"`
	Receipt     parse.Receipt       `json:"receipt"`
	Category    categorize.Category `json:"category"`
	Review      ReviewState         `json:"review,omitempty"`
	ReviewNotes string              `json:"review_notes,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NeedsReview reports whether the expense is waiting on a human decision.
func (e *Expense) NeedsReview() bool {
	return e.Review == ReviewPending
}
