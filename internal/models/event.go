package models

import "time"

// CalendarEvent is the payload for calendar events.
type CalendarEvent struct {
	ID         UUID     `json:"id"`
	Title      string   `json:"title"`
	Location   string   `json:"location,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	StartsAt   int64    `json:"starts_at"`
	EndsAt     int64    `json:"ends_at"`
	Attendees  []string `json:"attendees,omitempty"`
	ModifiedAt int64    `json:"modified_at"`
}

// StartsAtTime returns StartsAt as time.Time.
func (e *CalendarEvent) StartsAtTime() time.Time {
	return time.Unix(e.StartsAt, 0)
}
