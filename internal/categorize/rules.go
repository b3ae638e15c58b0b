package categorize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ledgerlens/ledgerlens/internal/parse"
)

// Rule maps keywords to one category. Keywords match case-insensitively
// against the merchant name and item descriptions.
type Rule struct {
	Category Category `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

type rulesFile struct {
	Categories []Rule `yaml:"categories"`
}

// Rules is a keyword-matching Categorizer. The rule with the most keyword
// hits wins; ties go to the earlier rule; no hits means Other.
type Rules struct {
	rules []Rule
}

// NewRules returns a Rules categorizer with the built-in rule set.
func NewRules() *Rules {
	return &Rules{rules: defaultRules}
}

// LoadRules reads a rule set from a YAML file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("rules file %s defines no categories", path)
	}
	return &Rules{rules: f.Categories}, nil
}

// Categorize implements Categorizer.
func (r *Rules) Categorize(receipt parse.Receipt) (Category, error) {
	var b strings.Builder
	b.WriteString(receipt.Merchant)
	for _, item := range receipt.Items {
		b.WriteByte(' ')
		b.WriteString(item.Description)
	}
	hay := strings.ToLower(b.String())

	best := Other
	bestHits := 0
	for _, rule := range r.rules {
		hits := 0
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(hay, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > bestHits {
			best = rule.Category
			bestHits = hits
		}
	}
	return best, nil
}

// Close implements Categorizer.
func (r *Rules) Close() error {
	return nil
}

var defaultRules = []Rule{
	{Category: "Groceries", Keywords: []string{"grocery", "supermarket", "market", "aldi", "lidl", "tesco", "kroger", "safeway", "whole foods", "trader joe"}},
	{Category: "Food & Dining", Keywords: []string{"restaurant", "cafe", "coffee", "pizza", "burger", "diner", "bakery", "bar ", "grill", "sushi"}},
	{Category: "Transportation", Keywords: []string{"fuel", "gas station", "petrol", "parking", "taxi", "uber", "lyft", "transit", "metro", "shell", "chevron"}},
	{Category: "Healthcare", Keywords: []string{"pharmacy", "drug", "cvs", "walgreens", "clinic", "dental", "optical", "prescription"}},
	{Category: "Entertainment", Keywords: []string{"cinema", "theater", "theatre", "ticket", "museum", "arcade", "concert"}},
	{Category: "Utilities", Keywords: []string{"electric", "water", "power", "internet", "telecom", "mobile", "broadband"}},
	{Category: "Office Supplies", Keywords: []string{"office", "staples", "paper", "toner", "printer", "stationery"}},
	{Category: "Travel", Keywords: []string{"hotel", "airline", "flight", "airways", "motel", "hostel", "rental car"}},
	{Category: "Shopping", Keywords: []string{"walmart", "target", "amazon", "clothing", "apparel", "store", "outlet"}},
}
