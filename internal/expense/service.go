package expense

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledgerlens/ledgerlens/internal/categorize"
	"github.com/ledgerlens/ledgerlens/internal/ocr"
	"github.com/ledgerlens/ledgerlens/internal/parse"
)

// DefaultReviewThreshold is the overall confidence below which an expense
// is queued for human review.
const DefaultReviewThreshold = 0.5

// IDGenerator generates unique IDs for expenses.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs the full ingestion path: prepare the image, recognize text,
// parse it into a receipt, categorize, and persist.
type Service struct {
	db              DB
	engine          ocr.Engine
	pipeline        *parse.Pipeline
	categorizer     categorize.Categorizer
	storage         Storage
	idGenerator     IDGenerator
	timeSource      TimeSource
	reviewThreshold float64
}

// NewService creates a Service with default ID generator and time source.
func NewService(db DB, engine ocr.Engine, categorizer categorize.Categorizer, storage Storage) *Service {
	return NewServiceWithDeps(db, engine, categorizer, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, engine ocr.Engine, categorizer categorize.Categorizer, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:              db,
		engine:          engine,
		pipeline:        parse.NewPipeline(),
		categorizer:     categorizer,
		storage:         storage,
		idGenerator:     idGen,
		timeSource:      timeSrc,
		reviewThreshold: DefaultReviewThreshold,
	}
}

var (
	specialCharRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up phone-generated filenames: special characters
// removed, spaces collapsed, base truncated.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = specialCharRe.ReplaceAllString(base, "")
	base = multiSpaceRe.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// ProcessDocument ingests one uploaded receipt document. The original file
// is stored first so a failed recognition leaves nothing behind; parsing
// itself never fails, so anything past recognition always yields an
// expense, with flags and review state standing in for errors.
func (s *Service) ProcessDocument(ctx context.Context, filename string, data []byte, contentType string) (*Expense, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	png, err := ocr.PrepareImage(data, contentType)
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	raw, err := s.engine.Recognize(ctx, png)
	if err != nil {
		slog.Error("Failed to recognize document",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("recognizing text: %w", err)
	}

	receipt := s.pipeline.Parse(raw)

	category, err := s.categorizer.Categorize(receipt)
	categorizeFailed := err != nil
	if categorizeFailed {
		slog.Warn("Failed to categorize receipt", "filename", filename, "error", err)
		category = categorize.Other
	}

	expense := &Expense{
		ID:          id,
		Filename:    savedPath,
		ContentType: contentType,
		Receipt:     receipt,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(receipt.Flags) > 0 || receipt.Confidence < s.reviewThreshold || categorizeFailed {
		expense.Review = ReviewPending
	}

	if err := s.db.SaveExpense(expense); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}

	return expense, nil
}

// GetExpense retrieves an expense by ID.
func (s *Service) GetExpense(id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses.
func (s *Service) ListExpenses() ([]*Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense and its stored file.
func (s *Service) DeleteExpense(id string) error {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	if err := s.storage.Delete(expense.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", expense.Filename, "error", err)
	}

	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// GetExpenseFile retrieves the original document for an expense.
func (s *Service) GetExpenseFile(id string) ([]byte, string, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense: %w", err)
	}

	data, err := s.storage.Get(expense.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense file: %w", err)
	}

	return data, expense.ContentType, nil
}

// ListReviewQueue returns the expenses waiting for a human decision.
func (s *Service) ListReviewQueue() ([]*Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	queue := make([]*Expense, 0)
	for _, e := range expenses {
		if e.NeedsReview() {
			queue = append(queue, e)
		}
	}
	return queue, nil
}

// ResolveReview records a human decision on a pending expense. An empty
// category approves the parse as-is; a non-empty category corrects it.
func (s *Service) ResolveReview(id string, category categorize.Category, notes string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	if !expense.NeedsReview() {
		return nil, fmt.Errorf("expense %s is not awaiting review", id)
	}

	if category != "" && category != expense.Category {
		expense.Category = category
		expense.Review = ReviewCorrected
	} else {
		expense.Review = ReviewApproved
	}
	expense.ReviewNotes = notes
	expense.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}
