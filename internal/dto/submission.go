package dto

// AnswerInput is one answered field of a submission.
type AnswerInput struct {
	FieldID string `json:"field_id"`
	Value   string `json:"value"`
}

// SubmissionRequest is the public payload posted to a form link.
type SubmissionRequest struct {
	SubjectID *string       `json:"subject_id"`
	Answers   []AnswerInput `json:"answers"`
}

// SubmissionResult acknowledges a stored review.
type SubmissionResult struct {
	ReviewID string `json:"review_id"`
}

// AnswerError explains why one answer was rejected.
type AnswerError struct {
	FieldID string `json:"field_id"`
	Label   string `json:"label,omitempty"`
	Reason  string `json:"reason"`
}
