package chat

import "time"

// Session captures one transient anonymous conversation bound to a vehicle.
// At most one live session exists per vehicle at any instant.
type Session struct {
	ID           string    `json:"id"`
	VehicleRef   string    `json:"vehicleRef"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsActive     bool      `json:"isActive"`
	ScannerLabel string    `json:"scannerLabel,omitempty"`
}

// Live reports whether the session accepts traffic at the given instant.
func (s Session) Live(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
