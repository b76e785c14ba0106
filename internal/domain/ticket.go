package domain

import (
	"strings"
	"time"
)

// Ticket status labels shown to users and staff.
const (
	StatusCreated   = "Created"
	StatusAccepted  = "Order Accepted"
	StatusPaid      = "Order Paid"
	StatusPackaging = "Packaging Order"
	StatusShipped   = "Order Shipped"
	StatusDelivered = "Order Delivered"
	StatusComplete  = "Order Complete"
)

// StatusKey is the admin-facing vocabulary for status transitions.
type StatusKey string

const (
	StatusKeyAccepted    StatusKey = "accepted"
	StatusKeyPaid        StatusKey = "paid"
	StatusKeyPackage     StatusKey = "package"
	StatusKeyShipped     StatusKey = "shipped"
	StatusKeyDelivered   StatusKey = "delivered"
	StatusKeyComplete    StatusKey = "complete"
	StatusKeyShipDetails StatusKey = "shipdetails"
)

// StatusKeys lists the accepted keys in the order admins see them.
var StatusKeys = []StatusKey{
	StatusKeyAccepted,
	StatusKeyShipDetails,
	StatusKeyPaid,
	StatusKeyPackage,
	StatusKeyShipped,
	StatusKeyDelivered,
	StatusKeyComplete,
}

// ParseStatusKey normalizes raw admin input.
func ParseStatusKey(raw string) (StatusKey, bool) {
	key := StatusKey(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range StatusKeys {
		if key == known {
			return key, true
		}
	}
	return "", false
}

// CloseActor records who or what closed a ticket.
type CloseActor string

const (
	CloseActorAdmin      CloseActor = "admin"
	CloseActorUser       CloseActor = "user"
	CloseActorCompletion CloseActor = "completion"
	CloseActorInactivity CloseActor = "inactivity"
)

// Ticket is one support or order conversation between a user and staff.
type Ticket struct {
	ID           string
	UserID       int64
	Section      string
	Status       string
	CreatedAt    time.Time
	LastActivity time.Time
	Closed       bool
	ClosedAt     *time.Time
	ReferralCode *string
	LastPromptAt *time.Time
	SnoozeUntil  *time.Time
}

// Snoozed reports whether an admin deferred the inactivity prompt past now.
func (t *Ticket) Snoozed(now time.Time) bool {
	return t.SnoozeUntil != nil && now.Before(*t.SnoozeUntil)
}

// SectionMatches performs the loose, case-insensitive category check used for warnings.
func (t *Ticket) SectionMatches(fragments ...string) bool {
	section := strings.ToLower(t.Section)
	for _, fragment := range fragments {
		if strings.Contains(section, fragment) {
			return true
		}
	}
	return false
}
