package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-freight/lanemeter/internal/domain"
	"github.com/opensource-freight/lanemeter/internal/rules"
	"github.com/opensource-freight/lanemeter/internal/verdict"
)

// Rule type segments accepted by the /rules/{type} endpoints.
const (
	RuleTypeAcceptance     = "acceptance"
	RuleTypeClassification = "classification"
	RuleTypeTransform      = "transform"
	RuleTypeSurcharge      = "surcharge"
	RuleTypeArticleMap     = "article-maps"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store   domain.RuleStore
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.RuleStore, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, version string) *Handler {
	return &Handler{
		store:   store,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		version: version,
	}
}

// Rate handles POST /rate: runs one cargo unit through the rating
// pipeline and returns the full result.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cargo domain.CargoInput
	if err := json.NewDecoder(r.Body).Decode(&cargo); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := cargo.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	result, err := h.engine.ProcessCargo(ctx, &cargo)
	if err != nil {
		if isConfigError(err) {
			slog.Error("rating failed on rule configuration",
				"carrier_id", cargo.CarrierID,
				"error", err,
			)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("rating failed",
			"carrier_id", cargo.CarrierID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rating failed",
		})
		return
	}

	if result.Metadata.TraceID == "" {
		result.Metadata.TraceID = GetTraceID(ctx)
	}

	// Notify downstream consumers; the HTTP response does not depend
	// on delivery.
	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, cargo.CarrierID, domain.TopicCargoRated, payload); err != nil {
			slog.Error("failed to publish rating result", "result_id", result.ID, "error", err)
		}
		if verdict.Blocked(result) {
			if err := h.bus.Publish(ctx, cargo.CarrierID, domain.TopicCargoBlocked, payload); err != nil {
				slog.Error("failed to publish block notice", "result_id", result.ID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// isConfigError reports whether an error is caused by bad rule
// configuration rather than the request or the infrastructure.
func isConfigError(err error) bool {
	return errors.Is(err, domain.ErrUnknownCalcMode) ||
		errors.Is(err, domain.ErrUnknownTransform) ||
		errors.Is(err, domain.ErrInvalidRuleParams)
}

// ListRules handles GET /rules/{type}?carrier=ID.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleType := chi.URLParam(r, "type")
	carrierID := r.URL.Query().Get("carrier")

	if carrierID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "carrier query parameter is required",
		})
		return
	}

	var (
		payload any
		count   int
		err     error
	)

	switch ruleType {
	case RuleTypeAcceptance:
		var rs []*domain.AcceptanceRule
		rs, err = h.store.ListAcceptanceRules(ctx, carrierID)
		payload, count = rs, len(rs)
	case RuleTypeClassification:
		var rs []*domain.ClassificationBand
		rs, err = h.store.ListClassificationBands(ctx, carrierID)
		payload, count = rs, len(rs)
	case RuleTypeTransform:
		var rs []*domain.TransformRule
		rs, err = h.store.ListTransformRules(ctx, carrierID)
		payload, count = rs, len(rs)
	case RuleTypeSurcharge:
		var rs []*domain.SurchargeRule
		rs, err = h.store.ListSurchargeRules(ctx, carrierID)
		payload, count = rs, len(rs)
	case RuleTypeArticleMap:
		var rs []*domain.SurchargeArticleMap
		rs, err = h.store.ListArticleMaps(ctx, carrierID)
		payload, count = rs, len(rs)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown rule type: " + ruleType,
		})
		return
	}

	if err != nil {
		slog.Error("failed to list rules", "type", ruleType, "carrier_id", carrierID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": payload,
		"count": count,
	})
}

// CreateRule handles POST /rules/{type}: validates and persists one
// rule, then flushes cached snapshots so the edit takes effect on the
// next rating.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleType := chi.URLParam(r, "type")

	var saved any

	switch ruleType {
	case RuleTypeAcceptance:
		var rule domain.AcceptanceRule
		if !decodeRule(w, r, &rule, &rule.RuleMeta) {
			return
		}
		if err := h.store.SaveAcceptanceRule(ctx, &rule); err != nil {
			h.saveError(w, ruleType, err)
			return
		}
		saved = &rule

	case RuleTypeClassification:
		var band domain.ClassificationBand
		if !decodeRule(w, r, &band, &band.RuleMeta) {
			return
		}
		if band.OutcomeCategory == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "outcomeCategory is required",
			})
			return
		}
		if err := h.store.SaveClassificationBand(ctx, &band); err != nil {
			h.saveError(w, ruleType, err)
			return
		}
		saved = &band

	case RuleTypeTransform:
		var rule domain.TransformRule
		if !decodeRule(w, r, &rule, &rule.RuleMeta) {
			return
		}
		if rule.Code != domain.TransformOverwidthLM {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown transform code: " + rule.Code,
			})
			return
		}
		if err := h.store.SaveTransformRule(ctx, &rule); err != nil {
			h.saveError(w, ruleType, err)
			return
		}
		saved = &rule

	case RuleTypeSurcharge:
		var rule domain.SurchargeRule
		if !decodeRule(w, r, &rule, &rule.RuleMeta) {
			return
		}
		if rule.EventCode == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "eventCode is required",
			})
			return
		}
		if err := rule.DecodeParams(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		if err := h.engine.ValidateCondition(rule.Condition); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		if err := h.store.SaveSurchargeRule(ctx, &rule); err != nil {
			h.saveError(w, ruleType, err)
			return
		}
		saved = &rule

	case RuleTypeArticleMap:
		var m domain.SurchargeArticleMap
		if !decodeRule(w, r, &m, &m.RuleMeta) {
			return
		}
		if m.EventCode == "" || m.ArticleID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "eventCode and articleId are required",
			})
			return
		}
		switch m.QuantityMode {
		case domain.QuantityModeEvent, domain.QuantityModeUnit, domain.QuantityModeOne:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown quantityMode: " + m.QuantityMode,
			})
			return
		}
		if err := h.store.SaveArticleMap(ctx, &m); err != nil {
			h.saveError(w, ruleType, err)
			return
		}
		saved = &m

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown rule type: " + ruleType,
		})
		return
	}

	h.flushCache(ctx)

	writeJSON(w, http.StatusCreated, saved)
}

// CreateGroup handles POST /groups: persists a category group.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var group domain.CategoryGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if group.CarrierID == "" || group.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "carrierId and code are required",
		})
		return
	}

	if err := h.store.SaveCategoryGroup(ctx, &group); err != nil {
		slog.Error("failed to save category group", "code", group.Code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save category group",
		})
		return
	}

	h.flushCache(ctx)

	writeJSON(w, http.StatusCreated, &group)
}

// InvalidateCache handles POST /cache/invalidate.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "cache not available",
		})
		return
	}

	if err := h.cache.Flush(r.Context()); err != nil {
		slog.Error("cache flush failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "cache flush failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "cache invalidated",
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decodeRule decodes a rule body and checks the shared meta fields.
// Writes the error response itself and reports success.
func decodeRule(w http.ResponseWriter, r *http.Request, dest any, meta *domain.RuleMeta) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	if meta.CarrierID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "carrierId is required",
		})
		return false
	}
	if meta.EffectiveFrom != nil && meta.EffectiveTo != nil && meta.EffectiveTo.Before(*meta.EffectiveFrom) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "effectiveTo precedes effectiveFrom",
		})
		return false
	}
	return true
}

func (h *Handler) saveError(w http.ResponseWriter, ruleType string, err error) {
	if isConfigError(err) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	slog.Error("failed to save rule", "type", ruleType, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "failed to save rule",
	})
}

// flushCache drops cached rule snapshots after an edit. Best effort:
// snapshots also expire on their own TTL.
func (h *Handler) flushCache(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Flush(ctx); err != nil {
		slog.Warn("cache flush after rule edit failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
