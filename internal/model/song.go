package model

import "time"

// Song is the durable record written once a task finishes.
type Song struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Lyrics        string    `json:"lyrics"`
	Prompt        string    `json:"prompt"`
	Genre         Genre     `json:"genre"`
	Mood          Mood      `json:"mood"`
	AudioURLs     []string  `json:"audioUrls"` // at most two renditions
	ImageURL      string    `json:"imageUrl,omitempty"`
	ProviderJobID string    `json:"providerJobId"`
	UserID        string    `json:"userId,omitempty"`
	GuestID       string    `json:"guestId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
