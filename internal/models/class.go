package models

import "time"

// Class is a teaching group owned by one teacher.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail adds owner and size information.
type ClassDetail struct {
	Class
	TeacherName  string `db:"teacher_name" json:"teacher_name"`
	SubjectCount int    `db:"subject_count" json:"subject_count"`
	StudentCount int    `db:"student_count" json:"student_count"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	TeacherID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
