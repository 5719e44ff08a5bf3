package handler

import (
	"context"
	"errors"
	"net/http"

	"corrplot-backend/internal/plot"
	"corrplot-backend/internal/service"
)

// errorStatus 把错误映射为 HTTP 状态码和错误类型
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMissingParameter):
		return http.StatusBadRequest, "missing_parameter"
	case errors.Is(err, service.ErrInvalidParameter):
		return http.StatusBadRequest, "invalid_parameter"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "simulation_timeout"
	case errors.Is(err, service.ErrInvocationFailed):
		return http.StatusBadGateway, "simulation_invocation_failed"
	case errors.Is(err, service.ErrResultNotFound):
		return http.StatusInternalServerError, "result_file_not_found"
	case errors.Is(err, service.ErrAmbiguousResult):
		return http.StatusInternalServerError, "ambiguous_result"
	case errors.Is(err, service.ErrInvalidResult):
		return http.StatusInternalServerError, "invalid_result"
	case errors.Is(err, plot.ErrDegenerateDataset):
		return http.StatusUnprocessableEntity, "degenerate_dataset"
	case errors.Is(err, plot.ErrMixedDataset):
		return http.StatusUnprocessableEntity, "mixed_dataset"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
