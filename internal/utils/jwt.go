package utils

import (
	"time"

	"mekassarat_back_end/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateJWT signe un token pour un appelant (utilisé par les outils d'admin et les tests)
func GenerateJWT(secret string, caller models.Caller, ttl time.Duration) (string, error) {
	if secret == "" {
		secret = "super_secret"
	}

	claims := jwt.MapClaims{
		"user_id": caller.ID,
		"email":   caller.Email,
		"name":    caller.Name,
		"role":    caller.Role,
		"exp":     time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
