package expense

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		engine      *mockEngine
		categorizer *mockCategorizer
		service     *Service
		server      *Server
		auth        BasicAuth
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		engine = newMockEngine()
		categorizer = newMockCategorizer()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		idGen := &mockIDGenerator{id: "test-id-123"}
		timeSrc := &mockTimeSource{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, engine, categorizer, storage, idGen, timeSrc)
		server = NewServer(service, auth)
	})

	doRequest := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	uploadRequest := func(filename string, data []byte) *http.Request {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		header.Set("Content-Type", "image/png")
		part, err := writer.CreatePart(header)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, "/api/expenses", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req
	}

	Describe("POST /api/expenses", func() {
		It("ingests an uploaded document", func() {
			rec := doRequest(uploadRequest("receipt.png", []byte("fake image data")))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var exp Expense
			Expect(json.Unmarshal(rec.Body.Bytes(), &exp)).NotTo(HaveOccurred())
			Expect(exp.ID).To(Equal("test-id-123"))
			Expect(exp.Receipt.Merchant).To(Equal("CORNER DELI"))
			Expect(exp.Category).To(Equal(categorizer.category))
		})

		It("rejects a request without a file", func() {
			var body bytes.Buffer
			writer := multipart.NewWriter(&body)
			Expect(writer.Close()).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodPost, "/api/expenses", &body)
			req.Header.Set("Content-Type", writer.FormDataContentType())

			rec := doRequest(req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/expenses", func() {
		BeforeEach(func() {
			db.expenses["a"] = &Expense{ID: "a"}
			db.expenses["b"] = &Expense{ID: "b"}
		})

		It("lists all expenses", func() {
			rec := doRequest(httptest.NewRequest(http.MethodGet, "/api/expenses", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var expenses []Expense
			Expect(json.Unmarshal(rec.Body.Bytes(), &expenses)).NotTo(HaveOccurred())
			Expect(expenses).To(HaveLen(2))
		})
	})

	Describe("GET /api/expenses/{id}", func() {
		BeforeEach(func() {
			db.expenses["test-id-123"] = &Expense{ID: "test-id-123", Category: "Groceries"}
		})

		It("returns the expense", func() {
			rec := doRequest(httptest.NewRequest(http.MethodGet, "/api/expenses/test-id-123", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var exp Expense
			Expect(json.Unmarshal(rec.Body.Bytes(), &exp)).NotTo(HaveOccurred())
			Expect(exp.ID).To(Equal("test-id-123"))
		})

		It("returns 404 for an unknown ID", func() {
			rec := doRequest(httptest.NewRequest(http.MethodGet, "/api/expenses/missing", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/expenses/{id}/file", func() {
		BeforeEach(func() {
			db.expenses["test-id-123"] = &Expense{
				ID:          "test-id-123",
				Filename:    "test-id-123_receipt.png",
				ContentType: "image/png",
			}
			storage.files["test-id-123_receipt.png"] = []byte("original bytes")
		})

		It("serves the original document", func() {
			rec := doRequest(httptest.NewRequest(http.MethodGet, "/api/expenses/test-id-123/file", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("image/png"))
			Expect(rec.Body.Bytes()).To(Equal([]byte("original bytes")))
		})
	})

	Describe("DELETE /api/expenses/{id}", func() {
		BeforeEach(func() {
			db.expenses["test-id-123"] = &Expense{ID: "test-id-123", Filename: "f.png"}
			storage.files["f.png"] = []byte("data")
		})

		It("deletes the expense", func() {
			rec := doRequest(httptest.NewRequest(http.MethodDelete, "/api/expenses/test-id-123", nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(db.expenses).To(BeEmpty())
		})
	})

	Describe("GET /api/expenses/review", func() {
		BeforeEach(func() {
			db.expenses["a"] = &Expense{ID: "a", Review: ReviewPending}
			db.expenses["b"] = &Expense{ID: "b"}
		})

		It("lists only pending expenses", func() {
			rec := doRequest(httptest.NewRequest(http.MethodGet, "/api/expenses/review", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var queue []Expense
			Expect(json.Unmarshal(rec.Body.Bytes(), &queue)).NotTo(HaveOccurred())
			Expect(queue).To(HaveLen(1))
			Expect(queue[0].ID).To(Equal("a"))
		})
	})

	Describe("POST /api/expenses/{id}/review", func() {
		BeforeEach(func() {
			db.expenses["test-id-123"] = &Expense{
				ID:       "test-id-123",
				Category: "Groceries",
				Review:   ReviewPending,
			}
		})

		It("records a correction", func() {
			body := strings.NewReader(`{"category": "Food & Dining", "notes": "deli, not groceries"}`)
			req := httptest.NewRequest(http.MethodPost, "/api/expenses/test-id-123/review", body)

			rec := doRequest(req)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var exp Expense
			Expect(json.Unmarshal(rec.Body.Bytes(), &exp)).NotTo(HaveOccurred())
			Expect(exp.Review).To(Equal(ReviewCorrected))
			Expect(string(exp.Category)).To(Equal("Food & Dining"))
		})

		It("records an approval when no category is sent", func() {
			body := strings.NewReader(`{"notes": "ok"}`)
			req := httptest.NewRequest(http.MethodPost, "/api/expenses/test-id-123/review", body)

			rec := doRequest(req)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var exp Expense
			Expect(json.Unmarshal(rec.Body.Bytes(), &exp)).NotTo(HaveOccurred())
			Expect(exp.Review).To(Equal(ReviewApproved))
		})

		It("rejects a decision on a non-pending expense", func() {
			db.expenses["test-id-123"].Review = ReviewApproved

			body := strings.NewReader(`{}`)
			req := httptest.NewRequest(http.MethodPost, "/api/expenses/test-id-123/review", body)

			Expect(doRequest(req).Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a malformed body", func() {
			body := strings.NewReader(`{not json`)
			req := httptest.NewRequest(http.MethodPost, "/api/expenses/test-id-123/review", body)

			Expect(doRequest(req).Code).To(Equal(http.StatusBadRequest))
		})
	})

	When("basic auth is configured", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
		})

		It("rejects unauthenticated requests", func() {
			rec := doRequest(httptest.NewRequest(http.MethodGet, "/api/expenses", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("rejects bad credentials", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
			req.SetBasicAuth("user", "wrong")
			Expect(doRequest(req).Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts valid credentials", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
			req.SetBasicAuth("user", "secret")
			Expect(doRequest(req).Code).To(Equal(http.StatusOK))
		})
	})
})
