package api

import (
	"net/http"

	"distribution-service/internal/models"
	"distribution-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	status  int
	message string
}

var errorStatus = map[error]errorMapping{
	models.ErrValidation:         {http.StatusBadRequest, "Validation failed"},
	models.ErrUnauthorized:       {http.StatusUnauthorized, "Unauthorized"},
	models.ErrForbidden:          {http.StatusForbidden, "Forbidden"},
	models.ErrNotFound:           {http.StatusNotFound, "Not found"},
	models.ErrInvalidState:       {http.StatusConflict, "Invalid state"},
	models.ErrInsufficientStock:  {http.StatusConflict, "Insufficient stock"},
	models.ErrConflict:           {http.StatusConflict, "Conflict"},
	models.ErrInvariantViolation: {http.StatusInternalServerError, "Stock invariant violated"},
	models.ErrTransactionFailure: {http.StatusServiceUnavailable, "Transaction failed"},
}

// respondError writes the {"error","details"} body for err's taxonomy kind
func respondError(c *gin.Context, err error) {
	mapping, ok := errorStatus[models.Kind(err)]
	if !ok {
		mapping = errorMapping{http.StatusInternalServerError, "Internal server error"}
	}

	if mapping.status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", mapping.status),
			zap.Error(err))
	}

	c.JSON(mapping.status, gin.H{
		"error":   mapping.message,
		"details": err.Error(),
	})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
