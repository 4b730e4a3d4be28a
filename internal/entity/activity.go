package entity

import "time"

// Activity is one entry in a user's append-only action history.
type Activity struct {
	ID        int64     `json:"id"`
	UserEmail string    `json:"userEmail"`
	Action    string    `json:"action"`
	Date      time.Time `json:"date"`
}

// Profile is the read model returned by GET /api/user.
type Profile struct {
	User
	Activities []Activity `json:"activities"`
}
