package parse

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ledgerlens/ledgerlens/internal/ocr"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	artifactRe   = regexp.MustCompile(`^[\W_]+$`)

	// Token patterns a confusion repair must improve against before it is
	// kept.
	amountTokenRe = regexp.MustCompile(`[£$€]?\d+\.\d{2}\b`)
	dateTokenRe   = regexp.MustCompile(`\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{4}-\d{2}-\d{2}`)

	// A line holding an amount followed by more text is two joined lines.
	joinedLineRe = regexp.MustCompile(`^(.*?\d\.\d{2})\s+(\S.*[A-Za-z].*)$`)
)

// confusionRewrites is the reversible table of frequent OCR substitutions,
// scoped to digit and currency context so prose is never rewritten.
var confusionRewrites = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(\d)[Oo](\d)`), "${1}0${2}"},
	{regexp.MustCompile(`(\d)[Oo]\b`), "${1}0"},
	{regexp.MustCompile(`([£$€]\s?)[Oo](\d)`), "${1}0${2}"},
	{regexp.MustCompile(`(\d)[Il](\d)`), "${1}1${2}"},
	{regexp.MustCompile(`(\d)[Il]\b`), "${1}1"},
	{regexp.MustCompile(`([£$€]\s?)[Il](\d)`), "${1}1${2}"},
	{regexp.MustCompile(`(\d)S(\d)`), "${1}5${2}"},
	{regexp.MustCompile(`(\d)B(\d)`), "${1}8${2}"},
	{regexp.MustCompile(`([£$€]\d+),(\d{2})\b`), "${1}.${2}"},
}

// Normalizer cleans raw OCR output into ordered, well-separated text lines.
// It is a pure transform, never fails, and is a fixed point after one pass.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize merges OCR fragments that share a visual row, strips
// non-printable artifacts, collapses whitespace, applies score-gated
// confusion repair, and splits joined lines. Worst case it returns the
// input lines unchanged; an empty document yields an empty result.
func (n *Normalizer) Normalize(doc ocr.RawDocument) NormalizedDocument {
	rows := mergeRows(doc.Lines)

	out := make([]NormalizedLine, 0, len(rows))
	for _, r := range rows {
		text := cleanText(r.text)
		if !keepLine(text) {
			continue
		}
		text = repairConfusions(text)
		for _, part := range splitJoined(text) {
			if !keepLine(part) {
				continue
			}
			out = append(out, NormalizedLine{
				Text:       part,
				Box:        r.box,
				Source:     r.source,
				Confidence: r.confidence,
			})
		}
	}
	return NormalizedDocument{Lines: out}
}

type mergedRow struct {
	text       string
	box        ocr.Box
	source     int
	confidence float64
}

// mergeRows joins raw lines whose bounding boxes overlap vertically by more
// than half the smaller height: OCR engines often emit the description and
// the right-aligned amount of one printed row as separate lines. Lines
// without layout information are kept as-is.
func mergeRows(lines []ocr.Line) []mergedRow {
	type fragment struct {
		line  ocr.Line
		index int
	}

	var groups [][]fragment
	for i, l := range lines {
		placed := false
		if !l.Box.IsZero() && len(groups) > 0 {
			last := groups[len(groups)-1]
			anchor := last[0].line.Box
			if !anchor.IsZero() && sameRow(anchor, l.Box) {
				groups[len(groups)-1] = append(last, fragment{l, i})
				placed = true
			}
		}
		if !placed {
			groups = append(groups, []fragment{{l, i}})
		}
	}

	rows := make([]mergedRow, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool {
			return g[a].line.Box.Left < g[b].line.Box.Left
		})
		row := mergedRow{source: g[0].index, confidence: g[0].line.Confidence}
		parts := make([]string, 0, len(g))
		for _, f := range g {
			parts = append(parts, f.line.Text)
			row.box = row.box.Union(f.line.Box)
			if f.line.Confidence < row.confidence {
				row.confidence = f.line.Confidence
			}
		}
		row.text = strings.Join(parts, " ")
		rows = append(rows, row)
	}
	return rows
}

func sameRow(a, b ocr.Box) bool {
	overlap := a.VerticalOverlap(b)
	if overlap == 0 {
		return false
	}
	min := a.Height()
	if b.Height() < min {
		min = b.Height()
	}
	return overlap*2 > min
}

// cleanText strips non-printable runes and collapses runs of whitespace.
func cleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == '\t' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(b.String(), " "))
}

// keepLine drops empty lines, punctuation-only artifacts, and stray single
// characters.
func keepLine(s string) bool {
	if s == "" || artifactRe.MatchString(s) {
		return false
	}
	if len(s) == 1 && s != "A" && s != "I" {
		return false
	}
	return true
}

// repairConfusions applies the confusion table, keeping the rewrite only
// when it increases the line's match count against currency and date token
// patterns. This keeps the repair from touching legitimate prose.
func repairConfusions(text string) string {
	repaired := text
	for _, rw := range confusionRewrites {
		repaired = rw.re.ReplaceAllString(repaired, rw.repl)
	}
	if repaired == text {
		return text
	}
	if tokenScore(repaired) > tokenScore(text) {
		return repaired
	}
	return text
}

func tokenScore(s string) int {
	return 2*len(amountTokenRe.FindAllString(s, -1)) + len(dateTokenRe.FindAllString(s, -1))
}

// splitJoined breaks a line after an amount when more text follows:
// "COFFEE 2.50 MUFFIN 3.00" is two printed rows that OCR glued together.
func splitJoined(text string) []string {
	parts := []string{}
	rest := text
	for {
		m := joinedLineRe.FindStringSubmatch(rest)
		if m == nil {
			parts = append(parts, rest)
			return parts
		}
		parts = append(parts, strings.TrimSpace(m[1]))
		rest = strings.TrimSpace(m[2])
	}
}
