package models

import "time"

// Subject is a course taught within a class.
type Subject struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	InstructorName  *string    `db:"instructor_name" json:"instructor_name,omitempty"`
	InstructorEmail *string    `db:"instructor_email" json:"instructor_email,omitempty"`
	FirstLessonDate *time.Time `db:"first_lesson_date" json:"first_lesson_date,omitempty"`
	LastLessonDate  *time.Time `db:"last_lesson_date" json:"last_lesson_date,omitempty"`
	ClassID         string     `db:"class_id" json:"class_id"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// SubjectContext joins a subject with the class that owns it.
type SubjectContext struct {
	Subject
	ClassName    string `db:"class_name" json:"class_name"`
	TeacherID    string `db:"teacher_id" json:"teacher_id"`
	TeacherName  string `db:"teacher_name" json:"teacher_name"`
	TeacherEmail string `db:"teacher_email" json:"teacher_email"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	ClassID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
