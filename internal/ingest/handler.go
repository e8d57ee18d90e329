package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chronicle/internal/platform/metrics"
	"chronicle/pkg/audit"
	domainerrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/mediator"
	"chronicle/pkg/platform/httputil"
)

// IngestCommand is one pushed batch.
type IngestCommand struct {
	Records []audit.Record
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
}

// Handler exposes the collector endpoint.
type Handler struct {
	logger *slog.Logger
	ingest mediator.Handler[IngestCommand, int]
}

func NewHandler(svc *Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	handler := func(ctx context.Context, cmd IngestCommand) (int, error) {
		if err := svc.Ingest(ctx, cmd.Records); err != nil {
			return 0, err
		}
		return len(cmd.Records), nil
	}
	return &Handler{
		logger: logger,
		ingest: mediator.Chain(handler,
			mediator.Recover[IngestCommand, int](logger, "ingest.records"),
			mediator.Logging[IngestCommand, int](logger, "ingest.records"),
			mediator.Metrics[IngestCommand, int](m.RequestDuration, "ingest.records"),
		),
	}
}

// Register mounts the collector route on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/audit/records", h.handleIngest)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var records []audit.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	accepted, err := h.ingest(r.Context(), IngestCommand{Records: records})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, ingestResponse{Accepted: accepted})
}
