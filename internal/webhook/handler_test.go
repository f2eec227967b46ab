package webhook_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/sdms/payment-core/internal"
	paymentmodel "github.com/sdms/payment-core/internal/core/datamodel/payment"
	"github.com/sdms/payment-core/internal/core/events"
	"github.com/sdms/payment-core/internal/gateway"
	"github.com/sdms/payment-core/internal/ledger"
	"github.com/sdms/payment-core/internal/transport"
	"github.com/sdms/payment-core/internal/webhook"
)

var _ = Describe("Handler", func() {
	var (
		router   *chi.Mux
		adapter  *stubAdapter
		repo     *mockEventRepository
		ledgerMk *mockLedger
	)

	post := func(path string, body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		if signature != "" {
			req.Header.Set("x-paystack-signature", signature)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		adapter = &stubAdapter{name: "paystack", parsed: &gateway.ParsedEvent{
			ProviderEventID:  "9913001",
			EventType:        "charge.success",
			PaymentReference: "PAY-100",
			Status:           gateway.ObservedSucceeded,
			AmountObserved:   decimal.NewFromFloat(150.50),
			Currency:         "NGN",
		}}
		repo = newMockEventRepository()
		ledgerMk = &mockLedger{result: &ledger.TransitionResult{
			Payment: &paymentmodel.Payment{
				PaymentReference: "PAY-100",
				OrderID:          42,
				Amount:           decimal.NewFromFloat(150.50),
				Currency:         "NGN",
				GatewayName:      "paystack",
				Status:           paymentmodel.StatusSucceeded,
			},
			Applied:            true,
			FirstTimeSucceeded: true,
		}}
		bus := events.NewEventBus(logger)
		ingestor := webhook.NewIngestor(&stubResolver{adapter: adapter}, ledgerMk, repo, bus, logger)
		handler := webhook.NewHandler(transport.NewBaseHandler(logger), ingestor, logger)

		router = chi.NewRouter()
		router.Post("/webhooks/{gateway}", handler.HandleWebhook)
	})

	Context("when the notification is applied", func() {
		It("should answer 200 with the outcome", func() {
			rec := post("/webhooks/paystack", []byte(`{"event":"charge.success"}`), "sig")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"applied"`))
		})
	})

	Context("when the gateway path segment is unknown", func() {
		It("should answer 404", func() {
			rec := post("/webhooks/stripe", []byte(`{}`), "sig")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("when the signature does not verify", func() {
		It("should answer 400 without leaking detail", func() {
			adapter.parseError = apperrors.ErrInvalidSignature

			rec := post("/webhooks/paystack", []byte(`{"event":"charge.success"}`), "bad")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).ToNot(ContainSubstring("PAY-100"))
		})
	})

	Context("when the ledger rejects the transition", func() {
		It("should still answer 200 so the provider does not retry", func() {
			ledgerMk.err = apperrors.ErrAmountMismatch

			rec := post("/webhooks/paystack", []byte(`{"event":"charge.success"}`), "sig")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"rejected"`))
		})
	})

	Context("when a duplicate delivery arrives", func() {
		It("should answer 200 with the duplicate outcome", func() {
			payload := []byte(`{"event":"charge.success"}`)
			Expect(post("/webhooks/paystack", payload, "sig").Code).To(Equal(http.StatusOK))

			rec := post("/webhooks/paystack", payload, "sig")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"duplicate"`))
		})
	})
})
