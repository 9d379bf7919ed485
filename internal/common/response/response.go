package response

import (
	"math"
	"net/http"
	"strconv"

	"healthtrack-backend/internal/common/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the normalized error envelope
type ErrorBody struct {
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
}

// Data writes a {"data": ...} success envelope
func Data(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

// Error writes the error envelope for err. Untyped errors are reported as
// INTERNAL_ERROR and their text is only logged.
func Error(c *gin.Context, logger *zap.Logger, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Wrap(apperror.CodeInternal, "internal error", err)
	}

	status := apperror.HTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.String("code", string(appErr.Code)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	if appErr.RetryAfter > 0 {
		seconds := int(math.Ceil(appErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	c.AbortWithStatusJSON(status, gin.H{"error": ErrorBody{Code: appErr.Code, Message: appErr.Message}})
}

// BindError reports a malformed request body. The binding error is only
// logged at debug level.
func BindError(c *gin.Context, logger *zap.Logger, err error) {
	if logger != nil {
		logger.Debug("request body rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrorBody{
		Code:    apperror.CodeValidation,
		Message: "invalid request body",
	}})
}
