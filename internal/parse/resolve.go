package parse

import (
	"sort"
)

// Resolver reconciles extracted candidates into a Receipt. It never fails:
// inconsistent input degrades into flags and reduced confidence.
type Resolver struct {
	maxAlternates int
}

// NewResolver returns a Resolver considering at most the top 3 candidates
// per money slot when searching for a consistent triple.
func NewResolver() *Resolver {
	return &Resolver{maxAlternates: 3}
}

// Resolve picks the highest-confidence candidate per field, verifies
// arithmetic consistency within tolerance, and on mismatch runs a bounded
// search over next-best subtotal/tax/total alternates. Worst case it
// returns best guesses with an arithmetic-mismatch flag.
func (r *Resolver) Resolve(cands []Candidate) Receipt {
	rec := Receipt{Items: []LineItem{}}

	byKind := make(map[Kind][]Candidate)
	for _, c := range cands {
		byKind[c.Kind] = append(byKind[c.Kind], c)
	}
	for k := range byKind {
		rank(byKind[k])
	}

	var merchantConf, dateConf, itemConf float64
	ambiguousDate := false

	if m := byKind[KindMerchant]; len(m) > 0 {
		rec.Merchant = m[0].Text
		merchantConf = m[0].Confidence
	}
	if d := byKind[KindDate]; len(d) > 0 {
		date := d[0].Date
		rec.Date = &date
		dateConf = d[0].Confidence
		ambiguousDate = dateConf < 0.5
	}

	items := append([]Candidate(nil), byKind[KindLineItem]...)
	sort.SliceStable(items, func(a, b int) bool { return items[a].Line < items[b].Line })
	var itemsSum Amount
	for _, c := range items {
		rec.Items = append(rec.Items, c.Item)
		itemsSum += c.Item.Amount
		itemConf += c.Confidence
	}
	if len(items) > 0 {
		itemConf /= float64(len(items))
	}

	subs := moneySlot{cands: byKind[KindSubtotal], limit: r.maxAlternates}
	taxes := moneySlot{cands: byKind[KindTax], limit: r.maxAlternates}
	tots := moneySlot{cands: byKind[KindTotal], limit: r.maxAlternates}

	sub, subConf := subs.value(0)
	tax, taxConf := taxes.value(0)
	tot, totConf := tots.value(0)

	performed, failed := arithmeticChecks(sub, tax, tot, itemsSum, len(items) > 0)
	mismatch := failed > 0
	if mismatch {
		if i, j, k, ok := r.searchAlternates(subs, taxes, tots, itemsSum, len(items) > 0); ok {
			penalty := 1 - 0.12*float64(i+j+k)
			if penalty < 0.5 {
				penalty = 0.5
			}
			sub, subConf = subs.value(i)
			tax, taxConf = taxes.value(j)
			tot, totConf = tots.value(k)
			subConf *= penalty
			taxConf *= penalty
			totConf *= penalty
			mismatch = false
		}
	}

	rec.Subtotal, rec.Tax, rec.Total = sub, tax, tot

	if mismatch {
		rec.Flags = append(rec.Flags, FlagArithmeticMismatch)
	}
	if ambiguousDate {
		rec.Flags = append(rec.Flags, FlagAmbiguousDate)
	}
	if tot == nil {
		rec.Flags = append(rec.Flags, FlagMissingTotal)
	}
	if len(items) == 0 {
		rec.Flags = append(rec.Flags, FlagNoLineItems)
	}

	factor := 1.0
	switch {
	case mismatch:
		factor = 0.4
	case performed == 0:
		factor = 0.85
	}
	rec.Confidence = factor * weightedConfidence(
		weighted{merchantConf, 0.15, rec.Merchant != ""},
		weighted{dateConf, 0.15, rec.Date != nil},
		weighted{itemConf, 0.2, len(rec.Items) > 0},
		weighted{subConf, 0.1, sub != nil},
		weighted{taxConf, 0.1, tax != nil},
		weighted{totConf, 0.3, tot != nil},
	)
	return rec
}

// rank orders candidates best first; ties keep document order.
func rank(cands []Candidate) {
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].Confidence != cands[b].Confidence {
			return cands[a].Confidence > cands[b].Confidence
		}
		return cands[a].Line < cands[b].Line
	})
}

// moneySlot is a ranked list of amount candidates for one field. An empty
// slot contributes a nil value at index 0 so absent fields still take part
// in the alternate search.
type moneySlot struct {
	cands []Candidate
	limit int
}

func (s moneySlot) size() int {
	if len(s.cands) == 0 {
		return 1
	}
	if len(s.cands) > s.limit {
		return s.limit
	}
	return len(s.cands)
}

func (s moneySlot) value(i int) (*Amount, float64) {
	if len(s.cands) == 0 || i >= len(s.cands) {
		return nil, 0
	}
	v := s.cands[i].Amount
	return &v, s.cands[i].Confidence
}

// searchAlternates enumerates subtotal/tax/total combinations in increasing
// rank distance from the best guesses and returns the first consistent one.
// The enumeration is a small fixed grid, never backtracking.
func (r *Resolver) searchAlternates(subs, taxes, tots moneySlot, itemsSum Amount, hasItems bool) (int, int, int, bool) {
	maxSum := subs.size() + taxes.size() + tots.size() - 3
	for s := 1; s <= maxSum; s++ {
		for i := 0; i < subs.size(); i++ {
			for j := 0; j < taxes.size(); j++ {
				k := s - i - j
				if k < 0 || k >= tots.size() {
					continue
				}
				sub, _ := subs.value(i)
				tax, _ := taxes.value(j)
				tot, _ := tots.value(k)
				performed, failed := arithmeticChecks(sub, tax, tot, itemsSum, hasItems)
				if performed > 0 && failed == 0 {
					return i, j, k, true
				}
			}
		}
	}
	return 0, 0, 0, false
}

// arithmeticChecks verifies the cross-field constraints that apply to the
// present fields: subtotal + tax = total, items sum = subtotal, and with no
// subtotal, items sum + tax = total.
func arithmeticChecks(sub, tax, tot *Amount, itemsSum Amount, hasItems bool) (performed, failed int) {
	taxOrZero := Amount(0)
	if tax != nil {
		taxOrZero = *tax
	}
	if sub != nil && tot != nil {
		performed++
		if !within(*sub+taxOrZero, *tot) {
			failed++
		}
	}
	if hasItems && sub != nil {
		performed++
		if !within(itemsSum, *sub) {
			failed++
		}
	}
	if hasItems && sub == nil && tot != nil {
		performed++
		if !within(itemsSum+taxOrZero, *tot) {
			failed++
		}
	}
	return performed, failed
}

// within applies the relative tolerance: 1% of the larger operand or one
// minor currency unit, whichever is larger.
func within(a, b Amount) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	larger := a
	if larger < 0 {
		larger = -larger
	}
	if abs := absAmount(b); abs > larger {
		larger = abs
	}
	tol := larger / 100
	if tol < 1 {
		tol = 1
	}
	return d <= tol
}

func absAmount(a Amount) Amount {
	if a < 0 {
		return -a
	}
	return a
}

type weighted struct {
	conf    float64
	weight  float64
	present bool
}

func weightedConfidence(parts ...weighted) float64 {
	var sum, total float64
	for _, p := range parts {
		if !p.present {
			continue
		}
		sum += p.conf * p.weight
		total += p.weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}
