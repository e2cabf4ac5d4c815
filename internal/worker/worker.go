// Package worker provides async rating of cargo from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-freight/lanemeter/internal/domain"
	"github.com/opensource-freight/lanemeter/internal/rules"
	"github.com/opensource-freight/lanemeter/internal/verdict"
)

// Worker rates cargo asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	engine *rules.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// CarrierIDs is the list of carriers to process.
	CarrierIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, engine *rules.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing rate requests for the given carriers.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.CarrierIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, carrierID := range cfg.CarrierIDs {
		if err := w.startCarrierWorker(carrierID); err != nil {
			slog.Error("failed to start worker for carrier",
				"carrier_id", carrierID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"carrier_count", len(cfg.CarrierIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all carriers (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicRateRequest, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startCarrierWorker starts a worker for a specific carrier.
func (w *Worker) startCarrierWorker(carrierID string) error {
	sub, err := w.bus.Subscribe(w.ctx, carrierID, domain.TopicRateRequest, func(ctx context.Context, msg *domain.Message) error {
		return w.rateCargo(ctx, carrierID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("carrier worker started",
		"carrier_id", carrierID,
		"topic", domain.TopicRateRequest,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.rateCargo(ctx, msg.CarrierID, msg)
}

// rateCargo runs one cargo unit through the rating pipeline and
// publishes the outcome.
func (w *Worker) rateCargo(ctx context.Context, carrierID string, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()

	var cargo domain.CargoInput
	if err := json.Unmarshal(msg.Payload, &cargo); err != nil {
		slog.Error("failed to parse rate request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message carrier if the payload omits it
	if cargo.CarrierID == "" {
		cargo.CarrierID = carrierID
	}

	slog.Debug("rating cargo",
		"carrier_id", cargo.CarrierID,
		"category", cargo.Category,
		"commodity_ref", cargo.CommodityRef,
	)

	result, err := w.engine.ProcessCargo(ctx, &cargo)
	if err != nil {
		slog.Error("rating failed",
			"carrier_id", cargo.CarrierID,
			"commodity_ref", cargo.CommodityRef,
			"error", err,
		)
		return err
	}

	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, cargo.CarrierID, domain.TopicCargoRated, resultPayload); err != nil {
		slog.Error("failed to publish rating result",
			"result_id", result.ID,
			"error", err,
		)
	}

	if verdict.Blocked(result) {
		if err := w.bus.Publish(ctx, cargo.CarrierID, domain.TopicCargoBlocked, resultPayload); err != nil {
			slog.Error("failed to publish block notice",
				"result_id", result.ID,
				"error", err,
			)
		}
	}

	slog.Info("cargo rated",
		"carrier_id", cargo.CarrierID,
		"result_id", result.ID,
		"status", result.Acceptance.Status,
		"chargeable_lm", result.Measure.ChargeableLM,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
