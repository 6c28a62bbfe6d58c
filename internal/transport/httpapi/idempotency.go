package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/transport/dto"
)

const (
	idempotencyKeyHeader      = "Idempotency-Key"
	idempotencyReplayedHeader = "Idempotent-Replayed"
	idempotencyTTL            = 24 * time.Hour
)

// requestOutcome отмечает, что обработчик завершился ошибкой, которую стоит повторить.
type requestOutcome struct {
	transient bool
}

type outcomeKey struct{}

func markTransient(r *http.Request, err error) {
	if outcome, ok := r.Context().Value(outcomeKey{}).(*requestOutcome); ok && domain.IsTransient(err) {
		outcome.transient = true
	}
}

// idempotent повторяет сохранённый ответ для запроса с уже виденным Idempotency-Key.
// Без заголовка запрос обрабатывается как обычно.
func (h *Handler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if h.idem == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: read request body: %v", domain.ErrValidation, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		record, err := h.idem.CreateProcessing(r.Context(), key, requestHash(r, body), h.now().Add(idempotencyTTL))
		if err != nil {
			h.replay(w, r, err, record)
			return
		}

		outcome := &requestOutcome{}
		buf := &bytes.Buffer{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(buf)
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), outcomeKey{}, outcome)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		// Запрос мог быть отменён клиентом; результат всё равно фиксируем.
		ctx := context.WithoutCancel(r.Context())

		logger := h.logger.WithField("idempotency_key", key)
		if status < http.StatusBadRequest {
			if err := h.idem.MarkDone(ctx, key, buf.Bytes(), status); err != nil {
				logger.WithError(err).Warn("failed to store idempotent success response")
			}
			return
		}
		// Сбой инфраструктуры или проигранная гонка не закрепляются за ключом.
		if outcome.transient || status >= http.StatusInternalServerError {
			if err := h.idem.Release(ctx, key); err != nil {
				logger.WithError(err).Warn("failed to release idempotency key")
			}
			return
		}
		if err := h.idem.MarkFailed(ctx, key, buf.Bytes(), status); err != nil {
			logger.WithError(err).Warn("failed to store idempotency failure response")
		}
	})
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		h.writeError(w, r, createErr)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			status := record.HTTPStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(idempotencyReplayedHeader, "true")
			w.WriteHeader(status)
			_, _ = w.Write(record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			writeJSON(w, http.StatusConflict, dto.ErrorEnvelope{Error: dto.Error{
				Code:    string(domain.KindConflict),
				Message: "request with the same idempotency key is already processing",
			}})
		default:
			h.writeError(w, r, fmt.Errorf("unknown idempotency record status %q", record.Status))
		}
	default:
		h.logger.WithError(createErr).Warn("failed to create idempotency record")
		h.writeError(w, r, createErr)
	}
}

// requestHash связывает ключ с методом, маршрутом и телом запроса.
func requestHash(r *http.Request, body []byte) string {
	hasher := sha256.New()
	_, _ = hasher.Write([]byte(r.Method + " " + r.URL.Path + ":"))
	_, _ = hasher.Write(body)
	return hex.EncodeToString(hasher.Sum(nil))
}
