package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuditCriticalActions journalise les actions d'administration après traitement
func AuditCriticalActions(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resourceID := c.Param("id")
		c.Next()

		caller := CallerFrom(c)
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.String("user_id", caller.ID),
			zap.String("email", caller.Email),
			zap.String("ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Time("timestamp", time.Now()),
		}
		if c.Writer.Status() >= 200 && c.Writer.Status() < 300 {
			zap.L().Info("📝 Action auditée", fields...)
		} else {
			zap.L().Warn("📝 Action échouée", fields...)
		}
	}
}

// RequestLogger remplace le logger gin par des lignes zap structurées
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			zap.L().Error("requête", fields...)
		case status >= 400:
			zap.L().Warn("requête", fields...)
		default:
			zap.L().Debug("requête", fields...)
		}
	}
}
