package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/transport/dto"
)

// statusFor сопоставляет категорию ошибки с HTTP-статусом.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict, domain.KindInvalidTransition:
		return http.StatusConflict
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// nginx-овский 499: клиент ушёл раньше ответа.
		return 499
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := domain.KindOf(err)
	markTransient(r, err)

	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
	}

	writeJSON(w, status, dto.ErrorEnvelope{Error: dto.Error{
		Code:    string(kind),
		Message: dto.PublicMessage(err),
	}})
}
