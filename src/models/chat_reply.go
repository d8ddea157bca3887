package models

import "time"

// MCardSection is the card part of a reply, possibly degraded.
type MCardSection struct {
	Ticker   string          `json:"ticker"`
	Card     *MCardViewModel `json:"card,omitempty"`
	Degraded string          `json:"degraded,omitempty"` // human readable, empty when healthy
	Rendered string          `json:"rendered"`
}

// MChatReply is what a single submission produces for the rendering layer.
type MChatReply struct {
	ID           string         `json:"id"`
	Input        MParsedInput   `json:"input"`
	ActionStatus string         `json:"action_status,omitempty"`
	ActionError  string         `json:"action_error,omitempty"`
	Sections     []MCardSection `json:"sections"`
	Gappers      []MTopGapper   `json:"gappers,omitempty"`
	Notes        []string       `json:"notes,omitempty"`
	Text         string         `json:"text"`
	CreatedAt    time.Time      `json:"created_at"`
}
