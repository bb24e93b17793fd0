package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin vérifie que l'utilisateur a le rôle "admin"
func RequireAdmin(c *gin.Context) {
	if !CallerFrom(c).IsAdmin() {
		abort(c, http.StatusForbidden, "AccessDenied", "Accès réservé aux administrateurs")
		return
	}
	c.Next()
}
