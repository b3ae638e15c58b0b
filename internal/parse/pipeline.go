package parse

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerlens/ledgerlens/internal/ocr"
)

// Pipeline composes the three parsing stages. It holds no per-document
// state, so a single Pipeline is safe for concurrent use.
type Pipeline struct {
	normalizer *Normalizer
	extractor  *Extractor
	resolver   *Resolver
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		normalizer: NewNormalizer(),
		extractor:  NewExtractor(),
		resolver:   NewResolver(),
	}
}

// Parse runs one document through normalize, extract, and resolve. It never
// fails: a document with no usable lines yields an empty Receipt carrying
// the empty-input flag and zero confidence.
func (p *Pipeline) Parse(doc ocr.RawDocument) Receipt {
	if len(doc.Lines) == 0 {
		return emptyReceipt()
	}
	norm := p.normalizer.Normalize(doc)
	if len(norm.Lines) == 0 {
		return emptyReceipt()
	}
	return p.resolver.Resolve(p.extractor.Extract(norm))
}

func emptyReceipt() Receipt {
	return Receipt{
		Items: []LineItem{},
		Flags: []Flag{FlagEmptyInput},
	}
}

// ParseBatch parses documents concurrently with at most workers in flight.
// Results keep input order; documents share no state, so any schedule
// produces the same receipts. The only early exit is context cancellation.
func (p *Pipeline) ParseBatch(ctx context.Context, docs []ocr.RawDocument, workers int) ([]Receipt, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]Receipt, len(docs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = p.Parse(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
