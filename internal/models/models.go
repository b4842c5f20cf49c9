// Package models defines the domain types shared across dailymail packages.
package models

import "time"

// SheetMetadata describes a deck file found under the data directory.
type SheetMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Review is a rating left through the review form.
type Review struct {
	ID        int64     `json:"id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// LearnedMark records that a deck row was marked as learned.
type LearnedMark struct {
	Deck      string    `json:"deck"`
	Row       int       `json:"row"`
	LearnedAt time.Time `json:"learned_at"`
}
