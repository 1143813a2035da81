package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enfinyte/umem/internal/annotation"
	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/internal/embedding"
	"github.com/enfinyte/umem/internal/store"
)

// writeError maps a domain error onto an HTTP status. Callers' mistakes map
// to 4xx; upstream model failures surface as 502 so clients can tell them
// apart from our own faults.
func writeError(c *gin.Context, err error) {
	var (
		ctxErr        *core.ContextError
		rangeErr      *core.OutOfRangeError
		transitionErr *core.InvalidTransitionError
		annotationErr *annotation.ExhaustedError
		embeddingErr  *embedding.Error
	)

	switch {
	case errors.As(err, &ctxErr),
		errors.As(err, &rangeErr),
		errors.Is(err, core.ErrNotFinite),
		errors.Is(err, core.ErrEmptyContent),
		errors.Is(err, core.ErrEmptySummary),
		errors.Is(err, core.ErrEmptyTag),
		errors.Is(err, core.ErrInvalidLimit),
		errors.Is(err, core.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	// A deadline expiring mid-retry reaches here wrapped in an exhaustion
	// error, so the timeout check must run before the capability checks.
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.As(err, &annotationErr), errors.As(err, &embeddingErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
