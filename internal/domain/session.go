package domain

import (
	"encoding/json"
	"fmt"
)

// SessionKind tags the active sub-flow of a chat session.
type SessionKind string

const (
	SessionIdle               SessionKind = "idle"
	SessionAwaitingReferral   SessionKind = "awaiting_referral"
	SessionInReview           SessionKind = "in_review"
	SessionCollectingShipping SessionKind = "collecting_shipping"
	SessionReplyingTo         SessionKind = "replying_to"
	SessionAwaitingTracking   SessionKind = "awaiting_tracking"
)

// Session is the per-user conversation state. Exactly one variant is active at a
// time; callers switch on the concrete type.
type Session interface {
	Kind() SessionKind
}

// Idle means no sub-flow is in progress.
type Idle struct{}

// AwaitingReferral holds a pending ticket creation until a code or "skip" arrives.
type AwaitingReferral struct {
	Section string `json:"section"`
}

// ReviewStep enumerates the review sub-flow.
type ReviewStep string

const (
	ReviewStepStars  ReviewStep = "stars"
	ReviewStepText   ReviewStep = "text"
	ReviewStepPhotos ReviewStep = "photos"
)

// InReview collects a rating, a text and optional photos.
type InReview struct {
	Step   ReviewStep `json:"step"`
	Stars  string     `json:"stars,omitempty"`
	Text   string     `json:"text,omitempty"`
	Photos []string   `json:"photos,omitempty"`
}

// ShippingStep enumerates the shipping sub-flow.
type ShippingStep string

const (
	ShippingStepName    ShippingStep = "name"
	ShippingStepAddress ShippingStep = "address"
	ShippingStepMethod  ShippingStep = "method"
)

// ShippingType is the owner's fulfilment choice.
type ShippingType string

const (
	ShippingTypeShip   ShippingType = "ship"
	ShippingTypePickup ShippingType = "pickup"
)

// CollectingShipping gathers delivery details for one ticket.
type CollectingShipping struct {
	TicketID string       `json:"ticket_id"`
	Step     ShippingStep `json:"step"`
	Type     ShippingType `json:"type"`
	Name     string       `json:"name,omitempty"`
	Address  string       `json:"address,omitempty"`
}

// ReplyingTo is an admin's single ticket focus.
type ReplyingTo struct {
	TicketID string `json:"ticket_id"`
}

// AwaitingTracking waits for the tracking code that completes a "shipped" transition.
type AwaitingTracking struct {
	TicketID string `json:"ticket_id"`
}

func (Idle) Kind() SessionKind               { return SessionIdle }
func (AwaitingReferral) Kind() SessionKind   { return SessionAwaitingReferral }
func (InReview) Kind() SessionKind           { return SessionInReview }
func (CollectingShipping) Kind() SessionKind { return SessionCollectingShipping }
func (ReplyingTo) Kind() SessionKind         { return SessionReplyingTo }
func (AwaitingTracking) Kind() SessionKind   { return SessionAwaitingTracking }

type sessionEnvelope struct {
	Kind  SessionKind     `json:"kind"`
	State json.RawMessage `json:"state,omitempty"`
}

// MarshalSession encodes a session with its kind tag.
func MarshalSession(s Session) ([]byte, error) {
	if s == nil {
		s = Idle{}
	}
	state, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sessionEnvelope{Kind: s.Kind(), State: state})
}

// UnmarshalSession decodes a tagged session.
func UnmarshalSession(data []byte) (Session, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var target Session
	switch env.Kind {
	case SessionIdle, "":
		return Idle{}, nil
	case SessionAwaitingReferral:
		var s AwaitingReferral
		if err := json.Unmarshal(env.State, &s); err != nil {
			return nil, err
		}
		target = s
	case SessionInReview:
		var s InReview
		if err := json.Unmarshal(env.State, &s); err != nil {
			return nil, err
		}
		target = s
	case SessionCollectingShipping:
		var s CollectingShipping
		if err := json.Unmarshal(env.State, &s); err != nil {
			return nil, err
		}
		target = s
	case SessionReplyingTo:
		var s ReplyingTo
		if err := json.Unmarshal(env.State, &s); err != nil {
			return nil, err
		}
		target = s
	case SessionAwaitingTracking:
		var s AwaitingTracking
		if err := json.Unmarshal(env.State, &s); err != nil {
			return nil, err
		}
		target = s
	default:
		return nil, fmt.Errorf("unknown session kind %q", env.Kind)
	}
	return target, nil
}
