package magiclink

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"magiclink/internal/domain/models"
	"magiclink/internal/http/response"
	"magiclink/internal/lib/logger/sl"
	"magiclink/internal/services/magiclink"
)

const (
	Path = "/auth/magic-link"

	tokenParam  = "token"
	actionParam = "action"

	msgUnauthorized = "invalid or expired token"
	msgInternal     = "internal server error"
)

type Exchanger interface {
	Exchange(
		ctx context.Context,
		action models.Action,
		token string,
	) (*magiclink.Exchange, error)
}

type Handler struct {
	logger    *slog.Logger
	exchanger Exchanger
	redirects magiclink.Redirects
	exchanges *prometheus.CounterVec
}

// Register mounts the magic link endpoint on r.
func Register(
	r chi.Router,
	logger *slog.Logger,
	reg prometheus.Registerer,
	exchanger Exchanger,
	redirects magiclink.Redirects,
) {
	h := New(logger, reg, exchanger, redirects)
	r.Get(Path, h.MagicLink)
}

func New(
	logger *slog.Logger,
	reg prometheus.Registerer,
	exchanger Exchanger,
	redirects magiclink.Redirects,
) *Handler {
	exchanges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magiclink_exchanges_total",
			Help: "Magic link exchanges by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
	reg.MustRegister(exchanges)

	return &Handler{
		logger:    logger,
		exchanger: exchanger,
		redirects: redirects,
		exchanges: exchanges,
	}
}

// MagicLink handles GET /auth/magic-link?token=<uuid>[&action=register].
func (h *Handler) MagicLink(w http.ResponseWriter, r *http.Request) {
	const op = "http.magiclink.MagicLink"
	log := h.logger.With(slog.String("op", op))

	query := r.URL.Query()
	token := query.Get(tokenParam)
	if token == "" {
		response.ValidationError(w, "token is required")
		return
	}
	if err := uuid.Validate(token); err != nil {
		response.ValidationError(w, "token must be a uuid")
		return
	}

	action := models.ParseAction(query.Get(actionParam))

	exchange, err := h.exchanger.Exchange(r.Context(), action, token)
	outcome := h.redirects.Resolve(exchange, err)
	h.exchanges.WithLabelValues(action.String(), outcome.Kind.String()).Inc()

	switch outcome.Kind {
	case magiclink.OutcomeSuccess:
		http.Redirect(w, r, outcome.Location, http.StatusFound)
	case magiclink.OutcomeErrorRedirect:
		log.Warn("magic link failed, redirecting to error url", sl.Err(outcome.Err))
		http.Redirect(w, r, outcome.Location, http.StatusFound)
	case magiclink.OutcomeUnauthorized:
		log.Warn("magic link rejected", sl.Err(outcome.Err))
		response.Unauthorized(w, msgUnauthorized)
	default:
		log.Error("magic link exchange failed", sl.Err(outcome.Err))
		response.InternalError(w, msgInternal)
	}
}
