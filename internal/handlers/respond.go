// Package handlers porte la traduction commune des erreurs métier en réponses HTTP.
package handlers

import (
	"net/http"

	"mekassarat_back_end/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[apperr.Kind]int{
	apperr.Validation:               http.StatusBadRequest,
	apperr.InvalidVariant:           http.StatusBadRequest,
	apperr.InvalidQuantity:          http.StatusBadRequest,
	apperr.EmptyCart:                http.StatusBadRequest,
	apperr.NotFound:                 http.StatusNotFound,
	apperr.ProductNotFound:          http.StatusNotFound,
	apperr.ProductUnavailable:       http.StatusConflict,
	apperr.InsufficientStock:        http.StatusConflict,
	apperr.DuplicateOrder:           http.StatusConflict,
	apperr.InvalidTransition:        http.StatusConflict,
	apperr.AlreadyRefunded:          http.StatusConflict,
	apperr.PaymentNotCompleted:      http.StatusPaymentRequired,
	apperr.PaymentOwnershipMismatch: http.StatusForbidden,
	apperr.AccessDenied:             http.StatusForbidden,
	apperr.Gateway:                  http.StatusBadGateway,
	apperr.Internal:                 http.StatusInternalServerError,
}

// StatusFor retourne le code HTTP d'un type d'erreur
func StatusFor(kind apperr.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError répond {"error": kind, "message": msg} avec le code adapté
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		zap.S().Errorf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": apperr.MessageOf(err)})
}

// BadRequest répond une erreur de validation pour un corps illisible
func BadRequest(c *gin.Context, message string) {
	RespondError(c, apperr.New(apperr.Validation, "%s", message))
}
