package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medisched/hospital-scheduling/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps domain sentinels to HTTP codes. Auth failures never
// reach this switch: ownership and role checks happen upstream.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrQueueEntryNotFound):
		writeError(w, http.StatusNotFound, "queue_entry_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, scheduling.ErrDoctorBusy):
		writeError(w, http.StatusConflict, "doctor_busy", "doctor schedule is being modified, please retry shortly")
	case errors.Is(err, scheduling.ErrDuplicateQueueEntry):
		writeError(w, http.StatusConflict, "duplicate_queue_entry", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyRescheduled):
		writeError(w, http.StatusConflict, "already_rescheduled", err.Error())
	case errors.Is(err, scheduling.ErrEntryNotWaiting):
		writeError(w, http.StatusConflict, "entry_not_waiting", err.Error())
	case errors.Is(err, scheduling.ErrEntryExpired):
		writeError(w, http.StatusConflict, "entry_expired", err.Error())
	case errors.Is(err, scheduling.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, scheduling.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, scheduling.ErrOutsideHours):
		writeError(w, http.StatusBadRequest, "outside_working_hours", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, scheduling.ErrInvalidPriority):
		writeError(w, http.StatusBadRequest, "invalid_priority", err.Error())
	case errors.Is(err, scheduling.ErrInvalidQueueStatus):
		writeError(w, http.StatusBadRequest, "invalid_queue_status", err.Error())
	case errors.Is(err, scheduling.ErrMissingContact):
		writeError(w, http.StatusBadRequest, "missing_contact", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
