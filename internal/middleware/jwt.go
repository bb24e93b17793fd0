// Package middleware regroupe l'authentification, les limites de débit et l'audit des routes gin.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"mekassarat_back_end/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const callerKey = "caller"

func abort(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": message})
}

// ParseToken valide un jeton HMAC et en extrait l'appelant
func ParseToken(secret []byte, tokenString string) (models.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("méthode de signature inattendue: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return models.Caller{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Caller{}, fmt.Errorf("claims invalides")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return models.Caller{}, fmt.Errorf("user_id manquant")
	}

	caller := models.Caller{ID: userID}
	caller.Email, _ = claims["email"].(string)
	caller.Name, _ = claims["name"].(string)
	caller.Role, _ = claims["role"].(string)
	return caller, nil
}

func bearer(c *gin.Context) (string, bool) {
	// un navigateur ne peut pas poser d'en-tête sur un websocket
	if c.GetHeader("Authorization") == "" && c.IsWebsocket() {
		tok := c.Query("token")
		return tok, tok != ""
	}
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setCaller(c *gin.Context, caller models.Caller) {
	c.Set(callerKey, caller)
	c.Set("user_id", caller.ID)
	c.Set("email", caller.Email)
	c.Set("role", caller.Role)
}

// AuthRequired rejette toute requête sans jeton valide
func AuthRequired(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" && !c.IsWebsocket() {
			abort(c, http.StatusUnauthorized, "Unauthorized", "Token manquant")
			return
		}
		tokenString, ok := bearer(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Unauthorized", "Format Authorization invalide")
			return
		}
		caller, err := ParseToken(key, tokenString)
		if err != nil {
			zap.S().Debugf("❌ JWT refusé: %v", err)
			abort(c, http.StatusUnauthorized, "Unauthorized", "Token invalide")
			return
		}
		setCaller(c, caller)
		c.Next()
	}
}

// OptionalAuth renseigne l'appelant si un jeton valide est présent, sans rien exiger
func OptionalAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if tokenString, ok := bearer(c); ok {
			if caller, err := ParseToken(key, tokenString); err == nil {
				setCaller(c, caller)
			}
		}
		c.Next()
	}
}

// CallerFrom retourne l'appelant authentifié, vide pour un visiteur anonyme
func CallerFrom(c *gin.Context) models.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(models.Caller); ok {
			return caller
		}
	}
	return models.Caller{}
}
