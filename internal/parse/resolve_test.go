package parse

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func amount(v Amount) *Amount { return &v }

func itemCandidate(line int, desc string, cents Amount, conf float64) Candidate {
	return Candidate{
		Kind:       KindLineItem,
		Line:       line,
		Confidence: conf,
		Item:       LineItem{Description: desc, Quantity: 1, UnitPrice: cents, Amount: cents},
	}
}

var _ = Describe("Resolver", func() {
	var (
		resolver *Resolver
		input    []Candidate
		output   Receipt
	)

	BeforeEach(func() {
		resolver = NewResolver()
	})

	JustBeforeEach(func() {
		output = resolver.Resolve(input)
	})

	When("there are no candidates", func() {
		BeforeEach(func() {
			input = nil
		})

		It("returns an empty receipt with the absence flags", func() {
			Expect(output.Merchant).To(BeEmpty())
			Expect(output.Date).To(BeNil())
			Expect(output.Items).To(BeEmpty())
			Expect(output.Items).NotTo(BeNil())
			Expect(output.Flags).To(Equal([]Flag{FlagMissingTotal, FlagNoLineItems}))
			Expect(output.Confidence).To(BeZero())
		})
	})

	When("the fields agree arithmetically", func() {
		BeforeEach(func() {
			input = []Candidate{
				{Kind: KindMerchant, Line: 0, Confidence: 0.85, Text: "CORNER DELI"},
				{Kind: KindDate, Line: 1, Confidence: 0.8, Date: time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)},
				itemCandidate(2, "Espresso", 250, 0.7),
				itemCandidate(3, "Croissant", 300, 0.7),
				{Kind: KindSubtotal, Line: 4, Confidence: 0.8, Amount: 550},
				{Kind: KindTax, Line: 5, Confidence: 0.8, Amount: 50},
				{Kind: KindTotal, Line: 6, Confidence: 0.85, Amount: 600},
			}
		})

		It("adopts the best candidate for every field", func() {
			Expect(output.Merchant).To(Equal("CORNER DELI"))
			Expect(output.Date).NotTo(BeNil())
			Expect(output.Items).To(HaveLen(2))
			Expect(output.Subtotal).To(Equal(amount(550)))
			Expect(output.Tax).To(Equal(amount(50)))
			Expect(output.Total).To(Equal(amount(600)))
		})

		It("raises no flags and reports solid confidence", func() {
			Expect(output.Flags).To(BeEmpty())
			Expect(output.Confidence).To(BeNumerically(">", 0.7))
		})
	})

	When("the total is off by less than the tolerance", func() {
		BeforeEach(func() {
			input = []Candidate{
				{Kind: KindSubtotal, Line: 0, Confidence: 0.8, Amount: 550},
				{Kind: KindTax, Line: 1, Confidence: 0.8, Amount: 50},
				{Kind: KindTotal, Line: 2, Confidence: 0.85, Amount: 601},
			}
		})

		It("accepts the rounding difference", func() {
			Expect(output.Total).To(Equal(amount(601)))
			Expect(output.HasFlag(FlagArithmeticMismatch)).To(BeFalse())
		})
	})

	When("the fields disagree and no alternate reconciles them", func() {
		BeforeEach(func() {
			input = []Candidate{
				itemCandidate(0, "Widget", 700, 0.7),
				{Kind: KindTotal, Line: 1, Confidence: 0.85, Amount: 1000},
			}
		})

		It("keeps the best guesses and flags the mismatch", func() {
			Expect(output.Total).To(Equal(amount(1000)))
			Expect(output.Flags).To(ContainElement(FlagArithmeticMismatch))
		})

		It("drops the confidence below half", func() {
			Expect(output.Confidence).To(BeNumerically("<", 0.5))
		})
	})

	When("a lower-ranked total makes the arithmetic work", func() {
		BeforeEach(func() {
			input = []Candidate{
				itemCandidate(0, "Espresso", 250, 0.7),
				itemCandidate(1, "Croissant", 300, 0.7),
				{Kind: KindSubtotal, Line: 2, Confidence: 0.8, Amount: 550},
				{Kind: KindTax, Line: 3, Confidence: 0.8, Amount: 50},
				{Kind: KindTotal, Line: 4, Confidence: 0.9, Amount: 1000},
				{Kind: KindTotal, Line: 5, Confidence: 0.7, Amount: 600},
			}
		})

		It("adopts the consistent alternate without flagging", func() {
			Expect(output.Total).To(Equal(amount(600)))
			Expect(output.HasFlag(FlagArithmeticMismatch)).To(BeFalse())
		})

		It("still scores above the review bar", func() {
			Expect(output.Confidence).To(BeNumerically(">", 0.5))
		})
	})

	When("the date candidate is weak", func() {
		BeforeEach(func() {
			input = []Candidate{
				{Kind: KindDate, Line: 0, Confidence: 0.4, Date: time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)},
				{Kind: KindTotal, Line: 1, Confidence: 0.85, Amount: 600},
			}
		})

		It("keeps the date but flags the ambiguity", func() {
			Expect(output.Date).NotTo(BeNil())
			Expect(output.Flags).To(ContainElement(FlagAmbiguousDate))
		})
	})

	When("only a total is present so nothing can be cross-checked", func() {
		BeforeEach(func() {
			input = []Candidate{
				{Kind: KindTotal, Line: 0, Confidence: 0.85, Amount: 600},
			}
		})

		It("dampens the confidence for the unverified amount", func() {
			Expect(output.Total).To(Equal(amount(600)))
			Expect(output.Confidence).To(BeNumerically("~", 0.85*0.85, 0.001))
		})
	})

	Describe("candidate ranking", func() {
		BeforeEach(func() {
			input = []Candidate{
				{Kind: KindMerchant, Line: 3, Confidence: 0.65, Text: "SECOND"},
				{Kind: KindMerchant, Line: 0, Confidence: 0.85, Text: "FIRST"},
			}
		})

		It("prefers the higher confidence regardless of order", func() {
			Expect(output.Merchant).To(Equal("FIRST"))
		})
	})

	Describe("item ordering", func() {
		BeforeEach(func() {
			input = []Candidate{
				itemCandidate(5, "Later", 300, 0.9),
				itemCandidate(2, "Earlier", 250, 0.6),
				{Kind: KindTotal, Line: 6, Confidence: 0.85, Amount: 550},
			}
		})

		It("lists items in document order", func() {
			Expect(output.Items).To(HaveLen(2))
			Expect(output.Items[0].Description).To(Equal("Earlier"))
			Expect(output.Items[1].Description).To(Equal("Later"))
		})
	})
})
