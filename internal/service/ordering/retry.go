package ordering

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// RetryConfig задаёт повтор транзакции, проигравшей гонку блокировок
// (deadlock или serialization failure в PostgreSQL).
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает параметры backoff для включённого повтора.
// Без WithRetry сервис транзакции не повторяет: ошибка уходит вызывающему.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// WithRetry включает повтор транзакций. MaxAttempts <= 1 отключает повторы.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// retryingTransactor перезапускает fn целиком в новой транзакции.
// fn обязана заново вычислять всё своё состояние на каждой попытке.
type retryingTransactor struct {
	next   domain.Transactor
	config RetryConfig
	logger *log.Entry
}

func newRetryingTransactor(next domain.Transactor, cfg RetryConfig, logger *log.Entry) domain.Transactor {
	if cfg.MaxAttempts <= 1 {
		return next
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	return &retryingTransactor{next: next, config: cfg, logger: logger}
}

func (t *retryingTransactor) RunAtomic(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	delay := t.config.InitialDelay

	for attempt := 1; ; attempt++ {
		err := t.next.RunAtomic(ctx, fn)
		if err == nil || !shouldRetry(err) {
			return err
		}
		if attempt >= t.config.MaxAttempts {
			t.logger.WithError(err).WithField("max_attempts", t.config.MaxAttempts).
				Warn("transaction failed after all retry attempts")
			return err
		}

		t.logger.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Debug("transaction lost a lock race, retrying")

		if delay > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(delay):
			}
		}

		delay = time.Duration(float64(delay) * t.config.BackoffFactor)
		if t.config.MaxDelay > 0 && delay > t.config.MaxDelay {
			delay = t.config.MaxDelay
		}
	}
}

// shouldRetry пропускает бизнес-отказы: повторять имеет смысл только проигранную гонку.
func shouldRetry(err error) bool {
	return errors.Is(err, domain.ErrConcurrentUpdate)
}
