package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medisched/hospital-scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PatientID   string `json:"patient_id"`
	DoctorID    string `json:"doctor_id"`
	ScheduledAt string `json:"scheduled_at"`
	Notes       string `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type RescheduleRequest struct {
	ScheduledAt string `json:"scheduled_at"`
	Reason      string `json:"reason,omitempty"`
}

type FollowUpRequest struct {
	ScheduledAt string `json:"scheduled_at"`
	Reason      string `json:"reason,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type JoinQueueRequest struct {
	PatientID     string   `json:"patient_id"`
	DoctorID      string   `json:"doctor_id"`
	RequestedDate string   `json:"requested_date"`
	FlexibleDates []string `json:"flexible_dates,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type UpdateQueueRequest struct {
	Priority      *string  `json:"priority,omitempty"`
	RequestedDate *string  `json:"requested_date,omitempty"`
	FlexibleDates []string `json:"flexible_dates,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

type PromoteRequest struct {
	ScheduledAt string `json:"scheduled_at"`
	Notes       string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID  `json:"id"`
	PatientID           uuid.UUID  `json:"patient_id"`
	DoctorID            uuid.UUID  `json:"doctor_id"`
	ScheduledAt         time.Time  `json:"scheduled_at"`
	Status              string     `json:"status"`
	Notes               string     `json:"notes,omitempty"`
	ConfirmationSentAt  *time.Time `json:"confirmation_sent_at,omitempty"`
	ConfirmationMethod  *string    `json:"confirmation_method,omitempty"`
	ConfirmedByPatient  bool       `json:"confirmed_by_patient"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	OriginalDate        *time.Time `json:"original_date,omitempty"`
	RescheduledFrom     *uuid.UUID `json:"rescheduled_from,omitempty"`
	RescheduledTo       *uuid.UUID `json:"rescheduled_to,omitempty"`
	RescheduleReason    *string    `json:"reschedule_reason,omitempty"`
	IsFollowUp          bool       `json:"is_follow_up"`
	ParentAppointmentID *uuid.UUID `json:"parent_appointment_id,omitempty"`
	FollowUpDate        *time.Time `json:"follow_up_date,omitempty"`
	FollowUpReason      *string    `json:"follow_up_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PatientID:           a.PatientID,
		DoctorID:            a.DoctorID,
		ScheduledAt:         a.ScheduledAt,
		Status:              string(a.Status),
		Notes:               a.Notes,
		ConfirmationSentAt:  a.ConfirmationSentAt,
		ConfirmationMethod:  a.ConfirmationMethod,
		ConfirmedByPatient:  a.ConfirmedByPatient,
		ConfirmedAt:         a.ConfirmedAt,
		OriginalDate:        a.OriginalDate,
		RescheduledFrom:     a.RescheduledFrom,
		RescheduledTo:       a.RescheduledTo,
		RescheduleReason:    a.RescheduleReason,
		IsFollowUp:          a.IsFollowUp,
		ParentAppointmentID: a.ParentAppointmentID,
		FollowUpDate:        a.FollowUpDate,
		FollowUpReason:      a.FollowUpReason,
		CreatedAt:           a.CreatedAt,
	}
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

type QueueEntryResponse struct {
	ID             uuid.UUID   `json:"id"`
	PatientID      uuid.UUID   `json:"patient_id"`
	DoctorID       uuid.UUID   `json:"doctor_id"`
	RequestedDate  time.Time   `json:"requested_date"`
	FlexibleDates  []time.Time `json:"flexible_dates,omitempty"`
	Priority       string      `json:"priority"`
	Status         string      `json:"status"`
	AppointmentID  *uuid.UUID  `json:"appointment_id,omitempty"`
	ExpiresAt      time.Time   `json:"expires_at"`
	NotifiedCount  int         `json:"notified_count"`
	LastNotifiedAt *time.Time  `json:"last_notified_at,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

func toQueueEntryResponse(e *scheduling.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		ID:             e.ID,
		PatientID:      e.PatientID,
		DoctorID:       e.DoctorID,
		RequestedDate:  e.RequestedDate,
		FlexibleDates:  e.FlexibleDates,
		Priority:       string(e.Priority),
		Status:         string(e.Status),
		AppointmentID:  e.AppointmentID,
		ExpiresAt:      e.ExpiresAt,
		NotifiedCount:  e.NotifiedCount,
		LastNotifiedAt: e.LastNotifiedAt,
		Notes:          e.Notes,
		CreatedAt:      e.CreatedAt,
	}
}

type PromoteResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Entry       QueueEntryResponse  `json:"entry"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
