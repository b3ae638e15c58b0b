package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	dotAmountRe   = regexp.MustCompile(`[£$€]?\s?(\d{1,3}(?:,\d{3})+|\d+)\.(\d{2})\b`)
	commaAmountRe = regexp.MustCompile(`[£$€]?\s?(\d{1,3}(?:\.\d{3})+|\d+),(\d{2})\b`)

	isoDateRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	numericDateRe  = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2,4})\b`)
	monthNameRe    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
	dayMonthNameRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+(\d{4})\b`)

	subtotalKeyRe = regexp.MustCompile(`(?i)\bsub[ \-]?total\b`)
	taxKeyRe      = regexp.MustCompile(`(?i)\b(sales )?(tax|vat|gst|hst|mwst|tva|iva)\b`)
	totalKeyRe    = regexp.MustCompile(`(?i)\b(grand )?(total|amount due|balance due|summe|totale)\b`)
	skipKeyRe     = regexp.MustCompile(`(?i)\b(change|cash|card|credit|debit|payment|tender|thank|approval|auth|visa|mastercard)\b`)

	quantityRe    = regexp.MustCompile(`^(\d+)\s*[xX]\s+`)
	leadingJunkRe = regexp.MustCompile(`^[\d\s*\-.]+`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Extractor recognizes candidate fields on a normalized document. Every
// plausible candidate is emitted with its own confidence; nothing is
// discarded here, resolution is the Resolver's job.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns all candidate fields found in the document. An empty
// document yields an empty candidate sequence.
func (e *Extractor) Extract(doc NormalizedDocument) []Candidate {
	if len(doc.Lines) == 0 {
		return nil
	}

	sep := inferDecimalSeparator(doc)
	order := inferDateOrder(doc)
	pageRight := pageRightEdge(doc)

	var out []Candidate
	out = append(out, merchantCandidates(doc, sep)...)
	out = append(out, dateCandidates(doc, order)...)
	out = append(out, moneyCandidates(doc, sep, pageRight)...)
	return out
}

type foundAmount struct {
	cents      Amount
	start, end int
}

// findAmounts returns every currency amount in the line, left to right,
// using the document's inferred decimal separator. A minus sign directly
// before the match makes the amount negative.
func findAmounts(text string, sep byte) []foundAmount {
	re := dotAmountRe
	group := ","
	if sep == ',' {
		re = commaAmountRe
		group = "."
	}

	var out []foundAmount
	for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
		whole := strings.ReplaceAll(text[idx[2]:idx[3]], group, "")
		frac := text[idx[4]:idx[5]]
		w, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			continue
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			continue
		}
		cents := Amount(w*100 + f)
		if prev := strings.TrimRight(text[:idx[0]], " "); strings.HasSuffix(prev, "-") {
			cents = -cents
		}
		out = append(out, foundAmount{cents: cents, start: idx[0], end: idx[1]})
	}
	return out
}

// inferDecimalSeparator picks the decimal separator by the most frequent
// amount pattern in the document, defaulting to the dot.
func inferDecimalSeparator(doc NormalizedDocument) byte {
	dots, commas := 0, 0
	for _, l := range doc.Lines {
		dots += len(dotAmountRe.FindAllString(l.Text, -1))
		commas += len(commaAmountRe.FindAllString(l.Text, -1))
	}
	if commas > dots {
		return ','
	}
	return '.'
}

type dateOrder int

const (
	orderAmbiguous dateOrder = iota
	orderMonthFirst
	orderDayFirst
)

// inferDateOrder votes on day/month order: any numeric date with a first
// component above 12 forces day-first, one with a second component above 12
// forces month-first. Conflicting or absent evidence stays ambiguous.
func inferDateOrder(doc NormalizedDocument) dateOrder {
	dayVotes, monthVotes := 0, 0
	for _, l := range doc.Lines {
		for _, m := range numericDateRe.FindAllStringSubmatch(l.Text, -1) {
			a, _ := strconv.Atoi(m[1])
			b, _ := strconv.Atoi(m[2])
			if a > 12 && b <= 12 {
				dayVotes++
			}
			if b > 12 && a <= 12 {
				monthVotes++
			}
		}
	}
	switch {
	case dayVotes > 0 && monthVotes == 0:
		return orderDayFirst
	case monthVotes > 0 && dayVotes == 0:
		return orderMonthFirst
	}
	return orderAmbiguous
}

func pageRightEdge(doc NormalizedDocument) int {
	right := 0
	for _, l := range doc.Lines {
		if l.Box.Right > right {
			right = l.Box.Right
		}
	}
	return right
}

// merchantCandidates reads the document header: leading lines with real
// text and no amounts, before the first priced line.
func merchantCandidates(doc NormalizedDocument, sep byte) []Candidate {
	var out []Candidate
	for i, l := range doc.Lines {
		if i >= 5 || len(findAmounts(l.Text, sep)) > 0 {
			break
		}
		if letterCount(l.Text) < 3 || numericDateRe.MatchString(l.Text) || isoDateRe.MatchString(l.Text) {
			continue
		}
		if subtotalKeyRe.MatchString(l.Text) || taxKeyRe.MatchString(l.Text) || totalKeyRe.MatchString(l.Text) || skipKeyRe.MatchString(l.Text) {
			continue
		}
		conf := 0.85 - 0.2*float64(len(out))
		if conf < 0.2 {
			break
		}
		out = append(out, Candidate{
			Kind:       KindMerchant,
			Line:       i,
			Confidence: scaleByLine(conf, l),
			Text:       l.Text,
		})
	}
	return out
}

func dateCandidates(doc NormalizedDocument, order dateOrder) []Candidate {
	var out []Candidate
	add := func(i int, l NormalizedLine, t time.Time, conf float64) {
		out = append(out, Candidate{
			Kind:       KindDate,
			Line:       i,
			Confidence: scaleByLine(conf, l),
			Date:       t,
		})
	}

	for i, l := range doc.Lines {
		for _, m := range isoDateRe.FindAllStringSubmatch(l.Text, -1) {
			y, _ := strconv.Atoi(m[1])
			mo, _ := strconv.Atoi(m[2])
			d, _ := strconv.Atoi(m[3])
			if t, ok := makeDate(y, mo, d); ok {
				add(i, l, t, 0.95)
			}
		}
		for _, m := range monthNameRe.FindAllStringSubmatch(l.Text, -1) {
			d, _ := strconv.Atoi(m[2])
			y, _ := strconv.Atoi(m[3])
			if t, ok := makeDate(y, int(monthsByPrefix[strings.ToLower(m[1])]), d); ok {
				add(i, l, t, 0.9)
			}
		}
		for _, m := range dayMonthNameRe.FindAllStringSubmatch(l.Text, -1) {
			d, _ := strconv.Atoi(m[1])
			y, _ := strconv.Atoi(m[3])
			if t, ok := makeDate(y, int(monthsByPrefix[strings.ToLower(m[2])]), d); ok {
				add(i, l, t, 0.9)
			}
		}
		for _, m := range numericDateRe.FindAllStringSubmatch(l.Text, -1) {
			a, _ := strconv.Atoi(m[1])
			b, _ := strconv.Atoi(m[2])
			y, _ := strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
			mo, d := a, b
			conf := 0.8
			switch {
			case a > 12 && b <= 12:
				mo, d = b, a
			case b > 12 && a <= 12:
				// already month-first
			case order == orderDayFirst:
				mo, d = b, a
			case order == orderMonthFirst:
				// month-first confirmed elsewhere in the document
			default:
				conf = 0.4 // no way to tell; prefer month-first, flag later
			}
			if t, ok := makeDate(y, mo, d); ok {
				add(i, l, t, conf)
			}
		}
	}
	return out
}

func makeDate(y, mo, d int) (time.Time, bool) {
	if y < 2000 || y > 2100 || mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, false
	}
	return t, true
}

// moneyCandidates walks the document once, classifying keyword lines into
// subtotal/tax/total candidates and the remaining priced lines into line
// item candidates.
func moneyCandidates(doc NormalizedDocument, sep byte, pageRight int) []Candidate {
	var out []Candidate
	for i, l := range doc.Lines {
		amounts := findAmounts(l.Text, sep)

		if kind, ok := classifyKeyword(l.Text); ok {
			conf := 0.8
			if kind == KindTotal {
				if loc := totalKeyRe.FindStringIndex(l.Text); loc != nil && loc[0] == 0 {
					conf = 0.85
				}
			}
			if len(amounts) > 0 {
				amt := amounts[len(amounts)-1]
				out = append(out, Candidate{
					Kind:       kind,
					Line:       i,
					Confidence: scaleByLine(conf, l),
					Amount:     amt.cents,
				})
			} else if j, amt, ok := adjacentAmount(doc, i, sep); ok {
				out = append(out, Candidate{
					Kind:       kind,
					Line:       j,
					Confidence: scaleByLine(0.55, l),
					Amount:     amt,
				})
			}
			continue
		}

		if skipKeyRe.MatchString(l.Text) || len(amounts) == 0 {
			continue
		}
		if item, ok := itemFromLine(l, amounts, pageRight); ok {
			out = append(out, Candidate{
				Kind:       KindLineItem,
				Line:       i,
				Confidence: scaleByLine(0.7, l),
				Item:       item,
			})
		}
	}
	return out
}

// classifyKeyword tags subtotal/tax/total lines. Subtotal wins over total
// ("sub total" contains "total"), tax wins over total ("total tax").
func classifyKeyword(text string) (Kind, bool) {
	switch {
	case subtotalKeyRe.MatchString(text):
		return KindSubtotal, true
	case taxKeyRe.MatchString(text):
		return KindTax, true
	case totalKeyRe.MatchString(text):
		return KindTotal, true
	}
	return 0, false
}

// adjacentAmount looks for an amount-only line directly below, then
// directly above, a keyword line that carries no amount of its own.
func adjacentAmount(doc NormalizedDocument, i int, sep byte) (int, Amount, bool) {
	for _, j := range []int{i + 1, i - 1} {
		if j < 0 || j >= len(doc.Lines) {
			continue
		}
		text := strings.TrimSpace(doc.Lines[j].Text)
		amounts := findAmounts(text, sep)
		if len(amounts) != 1 {
			continue
		}
		if amounts[0].start == 0 && amounts[0].end == len(text) {
			return j, amounts[0].cents, true
		}
	}
	return 0, 0, false
}

// itemFromLine accepts a line as a line item when the description sits left
// and the amount is right-aligned: the last amount must close the line, and
// when layout is known the line must reach the right part of the page.
func itemFromLine(l NormalizedLine, amounts []foundAmount, pageRight int) (LineItem, bool) {
	text := l.Text
	last := amounts[len(amounts)-1]
	if last.end != len(text) || last.cents <= 0 {
		return LineItem{}, false
	}
	if pageRight > 0 && !l.Box.IsZero() && l.Box.Right*100 < pageRight*55 {
		return LineItem{}, false
	}

	desc := strings.TrimSpace(text[:last.start])
	qty := 1
	if m := quantityRe.FindStringSubmatch(desc); m != nil {
		qty, _ = strconv.Atoi(m[1])
		if qty < 1 {
			qty = 1
		}
		desc = strings.TrimSpace(desc[len(m[0]):])
	}
	desc = strings.TrimSpace(leadingJunkRe.ReplaceAllString(desc, ""))
	desc = strings.TrimRight(desc, " .-*")
	if letterCount(desc) < 2 {
		return LineItem{}, false
	}

	return LineItem{
		Description: desc,
		Quantity:    qty,
		UnitPrice:   last.cents / Amount(qty),
		Amount:      last.cents,
	}, true
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// scaleByLine folds the OCR line confidence into an extraction confidence.
// Lines without a reported confidence keep the base score.
func scaleByLine(base float64, l NormalizedLine) float64 {
	if l.Confidence <= 0 {
		return base
	}
	return base * l.Confidence
}
