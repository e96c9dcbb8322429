package handler

import (
	"errors"
	"time"

	"github.com/nerdwiki/nerdwiki-api/internal/api/metrics"
	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

// observe records the outcome of an auth operation. errp is read after the
// handler returns.
func observe(operation string, start time.Time, errp *error) {
	metrics.AuthRequestsTotal.WithLabelValues(operation, result(*errp)).Inc()
	metrics.AuthRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func result(err error) string {
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrUnauthorized), errors.As(err, &ve):
		return "rejected"
	default:
		return "error"
	}
}
