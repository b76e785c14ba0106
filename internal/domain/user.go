package domain

import "time"

// User is a chat participant known to the desk.
type User struct {
	ID      int64
	Banned  bool
	Started bool
	Points  int
}

// Referral ties a shareable code to the user who generated it.
type Referral struct {
	Code      string
	UserID    int64
	CreatedAt time.Time
}
