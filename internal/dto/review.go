package dto

import (
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

// ReviewItem is a review with its answers.
type ReviewItem struct {
	models.Review
	Answers []models.ReviewAnswerDetail `json:"answers"`
}

// SubjectStats summarises the ratings of a subject.
type SubjectStats struct {
	SubjectID string `json:"subject_id"`
	models.RatingStats
}
