package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/hospital-scheduling/internal/scheduling"
)

func joinQueueHandler(qsvc *scheduling.QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinQueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		requested, ok := parseInstant(req.RequestedDate)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_date", "requested_date must be an RFC3339 timestamp")
			return
		}

		flexible, ok := parseInstants(req.FlexibleDates)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_date", "flexible_dates must be RFC3339 timestamps")
			return
		}

		entry, err := qsvc.Join(r.Context(), scheduling.JoinParams{
			PatientID:     patientID,
			DoctorID:      doctorID,
			RequestedDate: requested,
			FlexibleDates: flexible,
			Priority:      scheduling.Priority(req.Priority),
			Notes:         req.Notes,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toQueueEntryResponse(entry))
	}
}

func listQueueHandler(qsvc *scheduling.QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter scheduling.QueueFilter

		if raw := r.URL.Query().Get("doctor_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			filter.DoctorID = &id
		}
		if raw := r.URL.Query().Get("patient_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			filter.PatientID = &id
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := scheduling.QueueStatus(raw)
			filter.Status = &status
		}

		entries, err := qsvc.List(r.Context(), filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]QueueEntryResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, toQueueEntryResponse(&entries[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateQueueHandler(qsvc *scheduling.QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req UpdateQueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var update scheduling.QueueUpdate
		if req.Priority != nil {
			p := scheduling.Priority(*req.Priority)
			update.Priority = &p
		}
		if req.RequestedDate != nil {
			at, okAt := parseInstant(*req.RequestedDate)
			if !okAt {
				writeError(w, http.StatusBadRequest, "invalid_date", "requested_date must be an RFC3339 timestamp")
				return
			}
			update.RequestedDate = &at
		}
		if req.FlexibleDates != nil {
			flexible, okFlex := parseInstants(req.FlexibleDates)
			if !okFlex {
				writeError(w, http.StatusBadRequest, "invalid_date", "flexible_dates must be RFC3339 timestamps")
				return
			}
			update.FlexibleDates = flexible
		}
		update.Notes = req.Notes

		entry, err := qsvc.Update(r.Context(), id, update)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toQueueEntryResponse(entry))
	}
}

func leaveQueueHandler(qsvc *scheduling.QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		entry, err := qsvc.Leave(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toQueueEntryResponse(entry))
	}
}

func promoteHandler(qsvc *scheduling.QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req PromoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		at, okAt := parseInstant(req.ScheduledAt)
		if !okAt {
			writeError(w, http.StatusBadRequest, "invalid_date", "scheduled_at must be an RFC3339 timestamp")
			return
		}

		appt, entry, err := qsvc.Promote(r.Context(), id, at, req.Notes)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, PromoteResponse{
			Appointment: toAppointmentResponse(appt),
			Entry:       toQueueEntryResponse(entry),
		})
	}
}

func parseInstants(raw []string) ([]time.Time, bool) {
	if len(raw) == 0 {
		return nil, true
	}

	out := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, ok := parseInstant(s)
		if !ok {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}
