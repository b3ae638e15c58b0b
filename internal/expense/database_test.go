package expense

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerlens/ledgerlens/internal/categorize"
	"github.com/ledgerlens/ledgerlens/internal/parse"
)

func testExpense(id string) *Expense {
	total := parse.Amount(600)
	return &Expense{
		ID:          id,
		Filename:    id + "_receipt.png",
		ContentType: "image/png",
		Receipt: parse.Receipt{
			Merchant: "CORNER DELI",
			Items: []parse.LineItem{
				{Description: "Espresso", Quantity: 1, UnitPrice: 250, Amount: 250},
			},
			Total:      &total,
			Confidence: 0.8,
		},
		Category:  "Food & Dining",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveExpense", func() {
		var err error

		JustBeforeEach(func() {
			err = db.SaveExpense(testExpense("test-id"))
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should persist the full record", func() {
				saved, getErr := db.GetExpense("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("test-id"))
				Expect(saved.Receipt.Merchant).To(Equal("CORNER DELI"))
				Expect(saved.Receipt.Total).NotTo(BeNil())
				Expect(*saved.Receipt.Total).To(Equal(parse.Amount(600)))
				Expect(saved.Category).To(Equal(categorize.Category("Food & Dining")))
			})
		})

		When("the expense already exists", func() {
			BeforeEach(func() {
				first := testExpense("test-id")
				first.Category = "Groceries"
				Expect(db.SaveExpense(first)).NotTo(HaveOccurred())
			})

			It("overwrites the previous version", func() {
				saved, getErr := db.GetExpense("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Category).To(Equal(categorize.Category("Food & Dining")))
			})
		})
	})

	Describe("GetExpense", func() {
		When("the expense does not exist", func() {
			It("returns an error", func() {
				_, err := db.GetExpense("missing")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("ListExpenses", func() {
		When("the database is empty", func() {
			It("returns an empty slice", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(BeEmpty())
				Expect(expenses).NotTo(BeNil())
			})
		})

		When("expenses exist", func() {
			BeforeEach(func() {
				Expect(db.SaveExpense(testExpense("id-1"))).NotTo(HaveOccurred())
				Expect(db.SaveExpense(testExpense("id-2"))).NotTo(HaveOccurred())
			})

			It("returns all of them", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(HaveLen(2))
			})
		})
	})

	Describe("DeleteExpense", func() {
		BeforeEach(func() {
			Expect(db.SaveExpense(testExpense("test-id"))).NotTo(HaveOccurred())
		})

		It("removes the expense", func() {
			Expect(db.DeleteExpense("test-id")).NotTo(HaveOccurred())
			_, err := db.GetExpense("test-id")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("persistence across reopen", func() {
		It("keeps saved expenses", func() {
			Expect(db.SaveExpense(testExpense("test-id"))).NotTo(HaveOccurred())
			Expect(db.Close()).NotTo(HaveOccurred())

			reopened, err := NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			saved, err := reopened.GetExpense("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Receipt.Items).To(HaveLen(1))
		})
	})
})
