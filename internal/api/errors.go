// Package api implements C9 Control API: the authenticated JSON/HTTP
// surface over every other component (spec.md §4.9, §6).
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nvrd/internal/apperr"
)

// detail renders the spec's fixed error envelope: {detail: string}.
func detail(msg string) gin.H { return gin.H{"detail": msg} }

// respondError maps an apperr.Kind to its HTTP status and writes the
// fixed error envelope (spec.md §7).
func respondError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, detail("internal error"))
		return
	}

	switch e.Kind {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, detail(e.Message))
	case apperr.KindAuth:
		c.JSON(http.StatusUnauthorized, detail("authentication required"))
	case apperr.KindOwnership:
		c.JSON(http.StatusNotFound, detail("not found"))
	case apperr.KindConflict:
		c.JSON(http.StatusConflict, detail(e.Message))
	case apperr.KindTransient:
		c.JSON(http.StatusServiceUnavailable, detail(e.Message))
	default:
		c.JSON(http.StatusInternalServerError, detail("internal error"))
	}
}
