package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// usecaseが返すエラー。handlerがStatusとCodeをそのままJSONにする
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// errors.IsはCodeで比べる（メッセージが違っても同じ種類）
func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	return ok && t.Code == e.Code
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    codeForStatus(status),
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 種類の判定用
var (
	ErrValidation          = &HTTPError{Status: http.StatusBadRequest, Code: "VALIDATION", Message: "validation error"}
	ErrNotFound            = &HTTPError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "not found"}
	ErrUnauthorized        = &HTTPError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "unauthorized"}
	ErrForbidden           = &HTTPError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "forbidden"}
	ErrInternal            = &HTTPError{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal server error"}
	ErrEmptyCart           = &HTTPError{Status: http.StatusBadRequest, Code: "EMPTY_CART", Message: "cart is empty"}
	ErrInsufficientStock   = &HTTPError{Status: http.StatusBadRequest, Code: "INSUFFICIENT_STOCK", Message: "insufficient stock"}
	ErrAlreadyProcessed    = &HTTPError{Status: http.StatusBadRequest, Code: "ALREADY_PROCESSED", Message: "payment already processed"}
	ErrInvalidTransition   = &HTTPError{Status: http.StatusBadRequest, Code: "INVALID_TRANSITION", Message: "invalid status transition"}
	ErrPaymentExists       = &HTTPError{Status: http.StatusBadRequest, Code: "PAYMENT_EXISTS", Message: "order already has a payment"}
	ErrDuplicate           = &HTTPError{Status: http.StatusConflict, Code: "DUPLICATE", Message: "already exists"}
	ErrIdempotencyInFlight = &HTTPError{Status: http.StatusConflict, Code: "IDEMPOTENCY_IN_PROGRESS", Message: "request with this idempotency key is in progress"}
	ErrInUse               = &HTTPError{Status: http.StatusConflict, Code: "IN_USE", Message: "resource is still referenced"}
)

func validationError(msg string) error {
	return &HTTPError{Status: http.StatusBadRequest, Code: ErrValidation.Code, Message: msg}
}

func notFound(what string) error {
	return &HTTPError{Status: http.StatusNotFound, Code: ErrNotFound.Code, Message: what + " not found"}
}

func conflict(kind *HTTPError, msg string) error {
	return &HTTPError{Status: kind.Status, Code: kind.Code, Message: msg}
}

// 在庫不足：商品名と残数を返す
func insufficientStock(productName string, available int64) error {
	return conflict(ErrInsufficientStock, fmt.Sprintf("insufficient stock for %s. available: %d", productName, available))
}

// 想定外のエラーは中身を隠してwrapする（handlerでログに出す）
func internal(err error) error {
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrValidation.Code
	case http.StatusNotFound:
		return ErrNotFound.Code
	case http.StatusUnauthorized:
		return ErrUnauthorized.Code
	case http.StatusForbidden:
		return ErrForbidden.Code
	case http.StatusConflict:
		return ErrDuplicate.Code
	default:
		return ErrInternal.Code
	}
}
