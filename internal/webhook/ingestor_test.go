package webhook_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/sdms/payment-core/internal"
	paymentmodel "github.com/sdms/payment-core/internal/core/datamodel/payment"
	webhookmodel "github.com/sdms/payment-core/internal/core/datamodel/webhook"
	"github.com/sdms/payment-core/internal/core/events"
	"github.com/sdms/payment-core/internal/gateway"
	"github.com/sdms/payment-core/internal/ledger"
	"github.com/sdms/payment-core/internal/webhook"
)

func TestWebhookIngestor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Webhook Ingestor Suite")
}

// stubAdapter returns a canned parse result so the pipeline can be driven
// without a provider.
type stubAdapter struct {
	name       string
	parsed     *gateway.ParsedEvent
	parseError error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Initialize(ctx context.Context, intent gateway.PaymentIntent) (*gateway.InitializeResult, error) {
	return nil, apperrors.ErrGatewayUnavailable
}

func (s *stubAdapter) Verify(ctx context.Context, providerReference string) (*gateway.VerifyResult, error) {
	return nil, apperrors.ErrGatewayUnavailable
}

func (s *stubAdapter) ParseWebhook(payload []byte, signatureHeader string) (*gateway.ParsedEvent, error) {
	if s.parseError != nil {
		return nil, s.parseError
	}
	return s.parsed, nil
}

func (s *stubAdapter) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	return nil, apperrors.ErrGatewayUnavailable
}

type stubResolver struct {
	adapter gateway.Adapter
}

func (r *stubResolver) Resolve(name string) (gateway.Adapter, error) {
	if r.adapter == nil || r.adapter.Name() != name {
		return nil, apperrors.ErrUnknownGateway
	}
	return r.adapter, nil
}

type mockLedger struct {
	result      *ledger.TransitionResult
	err         error
	transitions []string
}

func (m *mockLedger) RequestTransition(reference, proposed string, evidence ledger.Evidence) (*ledger.TransitionResult, error) {
	m.transitions = append(m.transitions, proposed)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockEventRepository struct {
	events      []*webhookmodel.Event
	appliedKeys map[string]*webhookmodel.Event
	createError error
}

func newMockEventRepository() *mockEventRepository {
	return &mockEventRepository{appliedKeys: make(map[string]*webhookmodel.Event)}
}

func (m *mockEventRepository) Create(e *webhookmodel.Event) error {
	if m.createError != nil {
		return m.createError
	}
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
	return nil
}

func (m *mockEventRepository) GetAppliedByDedupKey(dedupKey string) (*webhookmodel.Event, error) {
	return m.appliedKeys[dedupKey], nil
}

func (m *mockEventRepository) UpdateStatus(id int64, status string, rejectReason *string) error {
	for _, e := range m.events {
		if e.ID == id {
			e.ProcessingStatus = status
			e.RejectReason = rejectReason
			if status == webhookmodel.StatusApplied {
				m.appliedKeys[e.DedupKey] = e
			}
			break
		}
	}
	return nil
}

var _ = Describe("Ingestor", func() {
	var (
		ingestor *webhook.Ingestor
		resolver *stubResolver
		adapter  *stubAdapter
		repo     *mockEventRepository
		ledgerMk *mockLedger
		bus      *events.EventBus
		logger   *slog.Logger
	)

	successEvent := func() *gateway.ParsedEvent {
		return &gateway.ParsedEvent{
			ProviderEventID:       "charge.success:9913001",
			EventType:             "charge.success",
			PaymentReference:      "PAY-100",
			Status:                gateway.ObservedSucceeded,
			AmountObserved:        decimal.NewFromFloat(150.50),
			Currency:              "NGN",
			ExternalTransactionID: "9913001",
		}
	}

	succeededPayment := func() *paymentmodel.Payment {
		return &paymentmodel.Payment{
			PaymentReference:      "PAY-100",
			OrderID:               42,
			ExternalTransactionID: "9913001",
			Amount:                decimal.NewFromFloat(150.50),
			Currency:              "NGN",
			GatewayName:           "paystack",
			Status:                paymentmodel.StatusSucceeded,
			CustomerEmail:         "buyer@example.com",
		}
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		adapter = &stubAdapter{name: "paystack", parsed: successEvent()}
		resolver = &stubResolver{adapter: adapter}
		repo = newMockEventRepository()
		ledgerMk = &mockLedger{result: &ledger.TransitionResult{
			Payment:            succeededPayment(),
			Applied:            true,
			FirstTimeSucceeded: true,
		}}
		bus = events.NewEventBus(logger)
		ingestor = webhook.NewIngestor(resolver, ledgerMk, repo, bus, logger)
	})

	Describe("Ingest", func() {
		Context("when a valid success notification arrives", func() {
			It("should apply the transition and publish the outcome", func() {
				// Given
				succeededCount := 0
				done := make(chan struct{}, 1)
				bus.Subscribe(events.EventTypePaymentSucceeded, func(ctx context.Context, event events.Event) error {
					succeededCount++
					done <- struct{}{}
					return nil
				})

				// When
				result, err := ingestor.Ingest(context.Background(), "paystack", []byte(`{"event":"charge.success"}`), "sig")

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(result.Outcome).To(Equal(webhook.OutcomeApplied))
				Expect(result.PaymentReference).To(Equal("PAY-100"))
				Expect(ledgerMk.transitions).To(Equal([]string{paymentmodel.StatusSucceeded}))
				Eventually(done).Should(Receive())
				Expect(succeededCount).To(Equal(1))

				Expect(repo.events).To(HaveLen(1))
				Expect(repo.events[0].ProcessingStatus).To(Equal(webhookmodel.StatusApplied))
				Expect(repo.events[0].SignatureValid).To(BeTrue())
			})
		})

		Context("when the same notification is delivered twice", func() {
			It("should record the duplicate without touching the ledger again", func() {
				// Given
				payload := []byte(`{"event":"charge.success"}`)
				_, err := ingestor.Ingest(context.Background(), "paystack", payload, "sig")
				Expect(err).ToNot(HaveOccurred())

				// When
				result, err := ingestor.Ingest(context.Background(), "paystack", payload, "sig")

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(result.Outcome).To(Equal(webhook.OutcomeDuplicate))
				Expect(ledgerMk.transitions).To(HaveLen(1))

				Expect(repo.events).To(HaveLen(2))
				Expect(repo.events[1].ProcessingStatus).To(Equal(webhookmodel.StatusDuplicate))
			})
		})

		Context("when the signature does not verify", func() {
			It("should reject before parsing and store the rejection", func() {
				// Given
				adapter.parseError = apperrors.ErrInvalidSignature

				// When
				_, err := ingestor.Ingest(context.Background(), "paystack", []byte(`{"event":"charge.success"}`), "bad-sig")

				// Then
				Expect(err).To(MatchError(apperrors.ErrInvalidSignature))
				Expect(ledgerMk.transitions).To(BeEmpty())

				Expect(repo.events).To(HaveLen(1))
				Expect(repo.events[0].ProcessingStatus).To(Equal(webhookmodel.StatusRejected))
				Expect(repo.events[0].SignatureValid).To(BeFalse())
			})
		})

		Context("when the gateway is not registered", func() {
			It("should return unknown gateway", func() {
				_, err := ingestor.Ingest(context.Background(), "stripe", []byte(`{}`), "sig")

				Expect(err).To(MatchError(apperrors.ErrUnknownGateway))
			})
		})

		Context("when the event type is not recognized", func() {
			It("should store the notification and ignore it", func() {
				// Given
				adapter.parsed.EventType = "transfer.success"
				adapter.parsed.Status = gateway.ObservedPending

				// When
				result, err := ingestor.Ingest(context.Background(), "paystack", []byte(`{"event":"transfer.success"}`), "sig")

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(result.Outcome).To(Equal(webhook.OutcomeIgnored))
				Expect(ledgerMk.transitions).To(BeEmpty())

				Expect(repo.events).To(HaveLen(1))
				Expect(repo.events[0].ProcessingStatus).To(Equal(webhookmodel.StatusReceived))
			})
		})

		Context("when a contradicting outcome follows an applied success", func() {
			It("should reach the ledger instead of deduplicating it away", func() {
				// Given an applied charge.success for transaction 9913001
				_, err := ingestor.Ingest(context.Background(), "paystack", []byte(`{"event":"charge.success"}`), "sig")
				Expect(err).ToNot(HaveOccurred())

				// When a charge.failed for the same transaction arrives
				adapter.parsed = &gateway.ParsedEvent{
					ProviderEventID:  "charge.failed:9913001",
					EventType:        "charge.failed",
					PaymentReference: "PAY-100",
					Status:           gateway.ObservedFailed,
					AmountObserved:   decimal.NewFromFloat(150.50),
					Currency:         "NGN",
				}
				ledgerMk.err = apperrors.ErrConflictingTerminalState
				result, err := ingestor.Ingest(context.Background(), "paystack", []byte(`{"event":"charge.failed"}`), "sig")

				// Then the conflict surfaces rather than a silent duplicate
				Expect(err).To(MatchError(apperrors.ErrConflictingTerminalState))
				Expect(result).To(BeNil())
				Expect(ledgerMk.transitions).To(Equal([]string{
					paymentmodel.StatusSucceeded,
					paymentmodel.StatusFailed,
				}))
				Expect(repo.events).To(HaveLen(2))
				Expect(repo.events[1].ProcessingStatus).To(Equal(webhookmodel.StatusRejected))
			})
		})

		Context("when the ledger rejects the transition", func() {
			It("should mark the audit row rejected and surface the error", func() {
				// Given
				ledgerMk.err = apperrors.ErrAmountMismatch

				// When
				_, err := ingestor.Ingest(context.Background(), "paystack", []byte(`{"event":"charge.success"}`), "sig")

				// Then
				Expect(err).To(MatchError(apperrors.ErrAmountMismatch))
				Expect(repo.events).To(HaveLen(1))
				Expect(repo.events[0].ProcessingStatus).To(Equal(webhookmodel.StatusRejected))
				Expect(repo.events[0].RejectReason).ToNot(BeNil())
			})
		})
	})

	Describe("DedupKey", func() {
		It("should key on the provider event id when present", func() {
			key := webhook.DedupKey("paystack", "evt-1", []byte(`{}`))

			Expect(key).To(Equal("paystack|evt-1"))
		})

		It("should fall back to a body fingerprint", func() {
			key := webhook.DedupKey("paystack", "", []byte(`{"a":1}`))

			Expect(key).To(HavePrefix("paystack|sha256:"))
			Expect(key).To(Equal(webhook.DedupKey("paystack", "", []byte(`{"a":1}`))))
			Expect(key).ToNot(Equal(webhook.DedupKey("paystack", "", []byte(`{"a":2}`))))
		})
	})
})
