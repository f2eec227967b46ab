package payment_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/sdms/payment-core/internal"
	paymentmodel "github.com/sdms/payment-core/internal/core/datamodel/payment"
	paymentPkg "github.com/sdms/payment-core/internal/payment"
	"github.com/sdms/payment-core/internal/transport"
)

type mockPaymentService struct {
	initiateResponse *paymentPkg.InitiateResponse
	initiateError    error
	statusResponse   *paymentPkg.StatusResponse
	statusError      error
	refundResponse   *paymentPkg.RefundResponse
	refundError      error
}

func (m *mockPaymentService) InitiatePayment(ctx context.Context, req paymentPkg.InitiateRequest) (*paymentPkg.InitiateResponse, error) {
	if m.initiateError != nil {
		return nil, m.initiateError
	}
	return m.initiateResponse, nil
}

func (m *mockPaymentService) VerifyPayment(ctx context.Context, reference string) (*paymentPkg.StatusResponse, error) {
	if m.statusError != nil {
		return nil, m.statusError
	}
	return m.statusResponse, nil
}

func (m *mockPaymentService) GetStatus(reference string) (*paymentPkg.StatusResponse, error) {
	if m.statusError != nil {
		return nil, m.statusError
	}
	return m.statusResponse, nil
}

func (m *mockPaymentService) RefundPayment(ctx context.Context, req paymentPkg.RefundRequest) (*paymentPkg.RefundResponse, error) {
	if m.refundError != nil {
		return nil, m.refundError
	}
	return m.refundResponse, nil
}

var _ = Describe("PaymentHandler", func() {
	var (
		router  *chi.Mux
		service *mockPaymentService
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = &mockPaymentService{
			initiateResponse: &paymentPkg.InitiateResponse{
				PaymentReference: "PAY-100",
				RedirectURL:      "https://checkout.paystack.com/abc123",
			},
			statusResponse: &paymentPkg.StatusResponse{
				PaymentReference: "PAY-100",
				OrderID:          42,
				Status:           paymentmodel.StatusSucceeded,
				Amount:           "150.5",
				Currency:         "NGN",
				GatewayName:      "paystack",
			},
			refundResponse: &paymentPkg.RefundResponse{
				PaymentReference: "PAY-100",
				RefundID:         "302",
				Status:           "pending",
			},
		}
		handler := paymentPkg.NewHandler(transport.NewBaseHandler(logger), service, logger)

		router = chi.NewRouter()
		router.Post("/payments/initiate", handler.Initiate)
		router.Get("/payments/verify/{reference}", handler.Verify)
		router.Get("/payments/status/{reference}", handler.Status)
		router.Post("/payments/refund", handler.Refund)
	})

	Describe("Initiate", func() {
		Context("when the request is valid", func() {
			It("should answer 201 with the redirect URL", func() {
				body := []byte(`{"order_id":42,"gateway_name":"paystack","amount":"150.50","currency":"NGN","customer_email":"buyer@example.com"}`)
				req := httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader(body))
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusCreated))
				Expect(rec.Body.String()).To(ContainSubstring("PAY-100"))
				Expect(rec.Body.String()).To(ContainSubstring("checkout.paystack.com"))
			})
		})

		Context("when the body is not JSON", func() {
			It("should answer 400", func() {
				req := httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader([]byte("not-json")))
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("when the order already has a live attempt", func() {
			It("should map the conflict to its HTTP status", func() {
				service.initiateError = apperrors.ErrOrderAlreadyPaid
				body := []byte(`{"order_id":42,"gateway_name":"paystack","amount":"150.50","currency":"NGN","customer_email":"buyer@example.com"}`)
				req := httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader(body))
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusConflict))
			})
		})
	})

	Describe("Verify", func() {
		It("should answer 200 with the recorded status", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/verify/PAY-100", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"succeeded"`))
		})

		Context("when the payment does not exist", func() {
			It("should answer 404", func() {
				service.statusError = apperrors.ErrPaymentNotFound
				req := httptest.NewRequest(http.MethodGet, "/payments/verify/PAY-missing", nil)
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("Status", func() {
		It("should answer 200 without a gateway round trip", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/status/PAY-100", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("PAY-100"))
		})
	})

	Describe("Refund", func() {
		It("should answer 200 with the refund id", func() {
			body := []byte(`{"payment_reference":"PAY-100"}`)
			req := httptest.NewRequest(http.MethodPost, "/payments/refund", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("302"))
		})

		Context("when the payment never succeeded", func() {
			It("should map the rejection to its HTTP status", func() {
				service.refundError = apperrors.ErrRefundNotAllowed
				body := []byte(`{"payment_reference":"PAY-101"}`)
				req := httptest.NewRequest(http.MethodPost, "/payments/refund", bytes.NewReader(body))
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).ToNot(Equal(http.StatusOK))
			})
		})
	})
})
