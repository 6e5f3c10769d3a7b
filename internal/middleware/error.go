package middleware

import (
	"errors"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.New(apperrors.ErrInternal, err.Error(), err)
		}

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
		}
		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "internal server error", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr)
		}
	}
}
