package history

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chronicle/internal/platform/metrics"
	"chronicle/pkg/audit/hierarchy"
	domainerrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/mediator"
	"chronicle/pkg/platform/httputil"
)

// Query types dispatched through the mediator pipelines.
type (
	TransactionsQuery struct {
		Limit int
	}
	TransactionQuery struct {
		CorrelationUID string
	}
	EntityHistoryQuery struct {
		EntityUID string
	}
)

// Handler exposes the history read endpoints. Each operation runs through
// its own mediator pipeline for recovery, logging and metrics.
type Handler struct {
	logger        *slog.Logger
	transactions  mediator.Handler[TransactionsQuery, []hierarchy.TransactionGroup]
	transaction   mediator.Handler[TransactionQuery, hierarchy.TransactionGroup]
	entityHistory mediator.Handler[EntityHistoryQuery, []hierarchy.TransactionGroup]
}

func NewHandler(svc *Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger: logger,
		transactions: pipeline(
			func(ctx context.Context, q TransactionsQuery) ([]hierarchy.TransactionGroup, error) {
				return svc.Transactions(ctx, q.Limit)
			},
			"history.transactions", logger, m),
		transaction: pipeline(
			func(ctx context.Context, q TransactionQuery) (hierarchy.TransactionGroup, error) {
				return svc.Transaction(ctx, q.CorrelationUID)
			},
			"history.transaction", logger, m),
		entityHistory: pipeline(
			func(ctx context.Context, q EntityHistoryQuery) ([]hierarchy.TransactionGroup, error) {
				return svc.EntityHistory(ctx, q.EntityUID)
			},
			"history.entity_history", logger, m),
	}
}

func pipeline[Req, Res any](h mediator.Handler[Req, Res], operation string, logger *slog.Logger, m *metrics.Metrics) mediator.Handler[Req, Res] {
	return mediator.Chain(h,
		mediator.Recover[Req, Res](logger, operation),
		mediator.Logging[Req, Res](logger, operation),
		mediator.Metrics[Req, Res](m.RequestDuration, operation),
	)
}

// Register mounts the history routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/transactions", h.handleTransactions)
	r.Get("/audit/transactions/{correlationUID}", h.handleTransaction)
	r.Get("/audit/entities/{entityUID}/history", h.handleEntityHistory)
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		limit = parsed
	}

	groups, err := h.transactions(r.Context(), TransactionsQuery{Limit: limit})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}

func (h *Handler) handleTransaction(w http.ResponseWriter, r *http.Request) {
	q := TransactionQuery{CorrelationUID: chi.URLParam(r, "correlationUID")}

	group, err := h.transaction(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, group)
}

func (h *Handler) handleEntityHistory(w http.ResponseWriter, r *http.Request) {
	q := EntityHistoryQuery{EntityUID: chi.URLParam(r, "entityUID")}

	groups, err := h.entityHistory(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}
