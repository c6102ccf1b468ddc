package model

import "time"

type AppointmentStatus string

const (
	StatusPendingTech     AppointmentStatus = "pending_tech"
	StatusPendingCustomer AppointmentStatus = "pending_customer"
	StatusConfirmed       AppointmentStatus = "confirmed"
	StatusCancelled       AppointmentStatus = "cancelled"
)

// Terminal reports whether no further automated transition is expected.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

type ResponseState string

const (
	ResponseNone     ResponseState = "none"
	ResponseAccepted ResponseState = "accepted"
	ResponseDeclined ResponseState = "declined"
)

type ChangeType string

const (
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

type ProcessResult string

const (
	ResultSuccess ProcessResult = "success"
	ResultSkipped ProcessResult = "skipped"
	ResultError   ProcessResult = "error"
)

// Appointment is the local record of one proposed service visit and its
// two-party confirmation state. Rows are never deleted; confirmed and
// cancelled records stay for audit.
type Appointment struct {
	ID                   string
	TicketID             string
	Status               AppointmentStatus
	CalendarEventID      string
	TechnicianEmail      string
	CustomerEmail        string
	TechnicianResponse   ResponseState
	CustomerResponse     ResponseState
	TechnicianAcceptedAt *time.Time
	CustomerAcceptedAt   *time.Time
	CancelReason         string
	CreatedAt            time.Time
}

// ChangeNotification is one inbound calendar change signal. processed_at is
// the idempotency boundary: once set the row is never picked up again.
type ChangeNotification struct {
	ID              int64
	SubscriptionID  string
	ResourceID      string
	ChangeType      ChangeType
	ScheduleID      string
	ProcessedAt     *time.Time
	ProcessedResult ProcessResult
	ErrorMessage    string
	Traceparent     string
	Tracestate      string
	CreatedAt       time.Time
}

type TicketStatus string

const (
	TicketTriaged   TicketStatus = "triaged"
	TicketScheduled TicketStatus = "scheduled"
)

// Ticket is the owning service ticket. This subsystem only reads it and
// reverts its status to triaged when a visit is cancelled.
type Ticket struct {
	ID            string
	Status        TicketStatus
	CustomerEmail string
	CustomerName  string
}
