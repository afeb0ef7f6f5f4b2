package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/logger"
)

// respondError maps err to its HTTP status and writes {error: message}.
// Only server-side failures are logged at error level.
func respondError(c *gin.Context, log *zap.Logger, msg string, err error) {
	status := apperrors.StatusCode(err)
	l := logger.WithContext(c, log)
	if status >= http.StatusInternalServerError {
		l.Error(msg, zap.Error(err))
	} else {
		l.Warn(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperrors.PublicMessage(err)})
}

func queryInt(c *gin.Context, key string) (int64, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, apperrors.Validation(key + " must be an integer")
	}
	return n, nil
}
