package dto

import "time"

// ClassRequest creates or updates a class. Admins may set the owner.
type ClassRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	TeacherID   *string `json:"teacher_id" validate:"omitempty,uuid"`
}

// SubjectRequest creates or updates a subject within a class.
type SubjectRequest struct {
	Name            string     `json:"name" validate:"required,max=120"`
	InstructorName  *string    `json:"instructor_name" validate:"omitempty,max=120"`
	InstructorEmail *string    `json:"instructor_email" validate:"omitempty,email"`
	FirstLessonDate *time.Time `json:"first_lesson_date"`
	LastLessonDate  *time.Time `json:"last_lesson_date"`
}

// EnrollRequest enrolls a student account into a class.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}
