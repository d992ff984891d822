package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidInput, http.StatusBadRequest, "validation_error"},
	{domain.ErrPaymentNotConfigured, http.StatusBadRequest, "payment_not_configured"},
	{domain.ErrInvalidLogin, http.StatusUnauthorized, "invalid_login"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrStudentNotFound, http.StatusNotFound, "student_not_found"},
	{domain.ErrInstructorNotFound, http.StatusNotFound, "instructor_not_found"},
	{domain.ErrCourseNotFound, http.StatusNotFound, "course_not_found"},
	{domain.ErrUsernameTaken, http.StatusConflict, "username_taken"},
	{domain.ErrAlreadyEnrolled, http.StatusConflict, "already_enrolled"},
	{domain.ErrEnrollmentInProgress, http.StatusConflict, "enrollment_in_progress"},
	{domain.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{domain.ErrPaymentRejected, http.StatusBadGateway, "payment_rejected"},
	{domain.ErrSettlementUnavailable, http.StatusServiceUnavailable, "settlement_unavailable"},
	{domain.ErrReconciliationRequired, http.StatusAccepted, "reconciliation_required"},
	{domain.ErrPaymentUnrecorded, http.StatusInternalServerError, "payment_unrecorded"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

// writeError maps catalog errors to a status and a stable code. Validation
// errors keep their field message; everything else uses the sentinel text.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, entry := range errorTable {
		if !errors.Is(err, entry.err) {
			continue
		}
		message := entry.err.Error()
		if entry.err == domain.ErrInvalidInput {
			message = err.Error()
		}
		if entry.status >= http.StatusInternalServerError || entry.status == http.StatusAccepted {
			logger.Warn("request settled with degraded outcome", "code", entry.code, "error", err)
		}
		writeJSON(w, entry.status, errorResponse{Success: false, Message: message, Code: entry.code})
		return
	}
	logger.Error("unhandled catalog error", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Success: false, Message: "Internal server error", Code: "internal"})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Success: false, Message: message, Code: "validation_error"})
}
