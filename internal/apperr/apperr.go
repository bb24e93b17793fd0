// Package apperr porte les erreurs métier typées partagées par les services.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Validation               Kind = "Validation"
	NotFound                 Kind = "NotFound"
	ProductNotFound          Kind = "ProductNotFound"
	ProductUnavailable       Kind = "ProductUnavailable"
	InvalidVariant           Kind = "InvalidVariant"
	InvalidQuantity          Kind = "InvalidQuantity"
	InsufficientStock        Kind = "InsufficientStock"
	EmptyCart                Kind = "EmptyCart"
	DuplicateOrder           Kind = "DuplicateOrder"
	PaymentNotCompleted      Kind = "PaymentNotCompleted"
	PaymentOwnershipMismatch Kind = "PaymentOwnershipMismatch"
	InvalidTransition        Kind = "InvalidTransition"
	AlreadyRefunded          Kind = "AlreadyRefunded"
	AccessDenied             Kind = "AccessDenied"
	Gateway                  Kind = "Gateway"
	Internal                 Kind = "Internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf retourne Internal pour toute erreur non typée
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf retourne le message lisible associé à l'erreur
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Erreur interne"
}
