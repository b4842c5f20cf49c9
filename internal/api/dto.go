package api

import (
	"github.com/starford/dailymail/internal/cardservice"
	"github.com/starford/dailymail/internal/models"
	"github.com/starford/dailymail/internal/scheduler"
)

// ScheduleListResponse wraps the scheduled actions.
type ScheduleListResponse struct {
	Schedules []scheduler.ActionStatus `json:"schedules" validate:"required"`
}

// DeckListResponse wraps the configured decks.
type DeckListResponse struct {
	Decks []cardservice.DeckInfo `json:"decks" validate:"required"`
}

// FileListResponse wraps the deck files under the data directory.
type FileListResponse struct {
	Files []cardservice.DeckFile `json:"files" validate:"required"`
}

// SampleResponse wraps sampled cards.
type SampleResponse struct {
	Deck  string             `json:"deck" example:"english" validate:"required"`
	Cards []cardservice.Card `json:"cards" validate:"required"`
}

// LearnedResponse reports the outcome of marking a row learned.
type LearnedResponse struct {
	Deck  string `json:"deck" example:"english" validate:"required"`
	Row   int    `json:"row" example:"12" validate:"required"`
	Added bool   `json:"added" example:"true"`
}

// LearnedListResponse wraps the learned marks of a deck.
type LearnedListResponse struct {
	Deck    string               `json:"deck" example:"english" validate:"required"`
	Learned []models.LearnedMark `json:"learned" validate:"required"`
}

// ReviewRequest is the request body for submitting a review.
type ReviewRequest = cardservice.ReviewInput

// ReviewListResponse wraps stored reviews.
type ReviewListResponse struct {
	Reviews []models.Review `json:"reviews" validate:"required"`
}

// SendResponse acknowledges a manual send.
type SendResponse struct {
	Action string `json:"action" example:"morning" validate:"required"`
	Status string `json:"status" example:"sent" validate:"required"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
