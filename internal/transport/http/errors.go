package httptransport

import (
	"net/http"

	"github.com/iliamunaev/orderdesk/internal/apperr"
)

// kindToStatus maps error classification kinds
// to HTTP status codes.
var kindToStatus = map[string]int{
	"bad_request":          http.StatusBadRequest,
	"invalid_transition":   http.StatusConflict,
	"transition_in_flight": http.StatusConflict,
	"not_pending":          http.StatusConflict,
	"no_business":          http.StatusConflict,
	"order_not_found":      http.StatusNotFound,
	"fetch_failed":         http.StatusBadGateway,
	"remote_error":         http.StatusBadGateway,
	"transition_failed":    http.StatusBadGateway,
	"closed":               http.StatusServiceUnavailable,
	"timeout":              http.StatusGatewayTimeout,
	"canceled":             http.StatusRequestTimeout,
}

func httpStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[apperr.Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
