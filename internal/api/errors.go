package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/xload/internal/aperture"
	"github.com/samcharles93/xload/internal/device"
	"github.com/samcharles93/xload/pkg/axlf"
	"github.com/samcharles93/xload/pkg/bitstream"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// First match wins.
var errorMappings = []errorMapping{
	{axlf.ErrMagicMismatch, http.StatusBadRequest, "magic_mismatch"},
	{axlf.ErrTruncatedHeader, http.StatusBadRequest, "truncated_header"},
	{axlf.ErrSectionOutOfBounds, http.StatusBadRequest, "section_out_of_bounds"},
	{axlf.ErrSectionNotFound, http.StatusBadRequest, "section_not_found"},
	{axlf.ErrSizeMismatch, http.StatusBadRequest, "size_mismatch"},
	{axlf.ErrAllocation, http.StatusBadRequest, "allocation_failure"},
	{bitstream.ErrInvalidFileHeader, http.StatusBadRequest, "invalid_file_header"},
	{aperture.ErrNoApertures, http.StatusBadRequest, "no_apertures"},
	{device.ErrInvalidBank, http.StatusBadRequest, "invalid_bank"},
	{device.ErrModeMismatch, http.StatusConflict, "mode_mismatch"},
	{device.ErrBankFull, http.StatusConflict, "bank_full"},
	{device.ErrImageLoadFailed, http.StatusInternalServerError, "image_load_failed"},
	{context.Canceled, http.StatusServiceUnavailable, "canceled"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
}

func (s *Server) writeDeviceError(c *echo.Context, err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return writeError(c, m.status, errorType(m.status), err.Error(), m.code)
		}
	}
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
}

func errorType(status int) string {
	switch {
	case status == http.StatusConflict:
		return "conflict_error"
	case status >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, code string) error {
	return c.JSON(status, ErrorResponse{Error: ResponseError{
		Message: msg,
		Type:    errType,
		Code:    code,
	}})
}
