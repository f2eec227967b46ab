package notification

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sdms/payment-core/internal/core/events"
)

type Kind string

const (
	KindReceipt       Kind = "receipt"
	KindFailureNotice Kind = "failure_notice"
	KindRefundNotice  Kind = "refund_notice"
)

// Job is one receipt or status email to send. The orchestrator only
// enqueues; delivery happens on the worker pool.
type Job struct {
	Kind             Kind
	PaymentReference string
	OrderID          int64
	CustomerEmail    string
	Amount           string
	Currency         string
	Reason           string
}

// Sender delivers one notification. Implementations wrap whatever mail
// transport the deployment uses.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

// LogSender is the default sender when no mail transport is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, job Job) error {
	s.Logger.Info("notification dispatched",
		"kind", job.Kind,
		"payment_reference", job.PaymentReference,
		"customer_email", job.CustomerEmail)
	return nil
}

type worker struct {
	id         int
	workerPool chan chan Job
	jobChannel chan Job
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan Job, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan Job),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, process func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.workerPool <- w.jobChannel

			select {
			case job := <-w.jobChannel:
				w.logger.Debug("worker processing notification",
					"worker_id", w.id,
					"payment_reference", job.PaymentReference)
				process(job)
			case <-ctx.Done():
				w.logger.Debug("notification worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

type Config struct {
	MaxWorkers   int
	JobQueueSize int
}

// Dispatcher fans notification jobs out to a bounded worker pool. Enqueue
// never blocks the caller: when the queue is full the job is dropped and
// logged, a receipt email is not worth stalling a payment confirmation.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewDispatcher(cfg Config, sender Sender, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	jobQueueSize := cfg.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	d := &Dispatcher{
		sender:     sender,
		logger:     logger,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan Job, jobQueueSize),
		workerPool: make(chan chan Job, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	d.startWorkerPool()

	return d
}

func (d *Dispatcher) startWorkerPool() {
	d.once.Do(func() {
		for i := 1; i <= d.maxWorkers; i++ {
			w := newWorker(i, d.workerPool, d.logger)
			w.start(d.ctx, &d.wg, d.process)
		}

		d.wg.Add(1)
		go d.dispatch()
	})
}

func (d *Dispatcher) dispatch() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobQueue:
			select {
			case jobChannel := <-d.workerPool:
				jobChannel <- job
			case <-d.ctx.Done():
				return
			}
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job Job) {
	if err := d.sender.Send(d.ctx, job); err != nil {
		d.logger.Error("notification delivery failed",
			"kind", job.Kind,
			"payment_reference", job.PaymentReference,
			"error", err)
	}
}

// Enqueue queues a notification without blocking.
func (d *Dispatcher) Enqueue(job Job) {
	select {
	case d.jobQueue <- job:
	default:
		d.logger.Warn("notification queue full, dropping job",
			"kind", job.Kind,
			"payment_reference", job.PaymentReference)
	}
}

func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

// EventHandler turns payment outcome events into queued notifications.
type EventHandler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewEventHandler(dispatcher *Dispatcher, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *EventHandler) HandlePaymentSucceeded(_ context.Context, event events.Event) error {
	succeeded, ok := event.(*events.PaymentSucceededEvent)
	if !ok {
		return nil
	}
	h.dispatcher.Enqueue(Job{
		Kind:             KindReceipt,
		PaymentReference: succeeded.PaymentReference,
		OrderID:          succeeded.OrderID,
		CustomerEmail:    succeeded.CustomerEmail,
		Amount:           succeeded.Amount,
		Currency:         succeeded.Currency,
	})
	return nil
}

func (h *EventHandler) HandlePaymentFailed(_ context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return nil
	}
	h.dispatcher.Enqueue(Job{
		Kind:             KindFailureNotice,
		PaymentReference: failed.PaymentReference,
		OrderID:          failed.OrderID,
		CustomerEmail:    failed.CustomerEmail,
		Reason:           failed.Reason,
	})
	return nil
}

func (h *EventHandler) HandlePaymentRefunded(_ context.Context, event events.Event) error {
	refunded, ok := event.(*events.PaymentRefundedEvent)
	if !ok {
		return nil
	}
	h.dispatcher.Enqueue(Job{
		Kind:             KindRefundNotice,
		PaymentReference: refunded.PaymentReference,
		OrderID:          refunded.OrderID,
		Amount:           refunded.Amount,
		Currency:         refunded.Currency,
	})
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentSucceeded, h.HandlePaymentSucceeded)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	eventBus.Subscribe(events.EventTypePaymentRefunded, h.HandlePaymentRefunded)

	h.logger.Info("notification event handlers registered")
}
