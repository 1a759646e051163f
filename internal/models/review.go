package models

import "time"

// Review is one anonymous submission of a form for a subject.
type Review struct {
	ID        string    `db:"id" json:"id"`
	FormID    string    `db:"form_id" json:"form_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReviewAnswer is the value given to one field of a review.
type ReviewAnswer struct {
	ID       string `db:"id" json:"id"`
	ReviewID string `db:"review_id" json:"review_id"`
	FieldID  string `db:"field_id" json:"field_id"`
	Value    string `db:"value" json:"value"`
}

// ReviewAnswerDetail carries the field label alongside the answer.
type ReviewAnswerDetail struct {
	ReviewAnswer
	FieldLabel string    `db:"field_label" json:"field_label"`
	FieldType  FieldType `db:"field_type" json:"field_type"`
}

// ReviewFilter narrows review listings for a subject.
type ReviewFilter struct {
	SubjectID string
	FormType  FormType
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// RatingStats aggregates the ratings of a subject.
type RatingStats struct {
	Count        int         `json:"count"`
	Average      float64     `json:"average"`
	Distribution map[int]int `json:"distribution"`
}

// RatingBucket is one row of the rating histogram.
type RatingBucket struct {
	Rating int `db:"rating"`
	Count  int `db:"count"`
}
