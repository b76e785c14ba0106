package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated            EventType = "ticket_created"
	EventTicketStatusChanged      EventType = "ticket_status_changed"
	EventTicketShipped            EventType = "ticket_shipped"
	EventTicketClosed             EventType = "ticket_closed"
	EventReferralCredited         EventType = "referral_credited"
	EventShippingDetailsRequested EventType = "shipping_details_requested"
	EventShippingDetailsSubmitted EventType = "shipping_details_submitted"
	EventInactivityPrompt         EventType = "inactivity_prompt"
	EventReviewSubmitted          EventType = "review_submitted"
	EventPointsGranted            EventType = "points_granted"
)

// ActorType says which side of the desk caused an event.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   ActorType `json:"type"`
	UserID *int64    `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	OwnerID   int64       `json:"owner_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Section      string  `json:"section"`
	ReferralCode *string `json:"referral_code,omitempty"`
	ReferrerID   *int64  `json:"referrer_id,omitempty"`
	OwnerPoints  int     `json:"owner_points"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// TicketShippedPayload payload.
type TicketShippedPayload struct {
	TrackingCode string `json:"tracking_code"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ClosedBy string `json:"closed_by"`
	Status   string `json:"status"`
}

// ReferralCreditedPayload payload.
type ReferralCreditedPayload struct {
	ReferrerID int64  `json:"referrer_id"`
	Code       string `json:"code"`
	Points     int    `json:"points"`
}

// ShippingDetailsPayload payload. Address is empty for pickup.
type ShippingDetailsPayload struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Method  string `json:"method,omitempty"`
}

// InactivityPromptPayload payload.
type InactivityPromptPayload struct {
	IdleFor time.Duration `json:"idle_for"`
}

// ReviewSubmittedPayload payload.
type ReviewSubmittedPayload struct {
	Stars  string   `json:"stars"`
	Text   string   `json:"text,omitempty"`
	Photos []string `json:"photos,omitempty"`
}

// PointsGrantedPayload payload.
type PointsGrantedPayload struct {
	Amount  int `json:"amount"`
	Balance int `json:"balance"`
}
