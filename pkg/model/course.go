package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxCourseNameLength = 128
	MaxCourseCapacity   = 500
	MaxScore            = 100
)

var ErrCourseName = errors.New("course name must be 1-128 characters")
var ErrCourseCapacity = errors.New("course capacity out of range")
var ErrScoreRange = errors.New("score must be between 0 and 100")

// Course is a class students can enroll in.
type Course struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	TeacherID   int64     `json:"teacher_id"`
	TeacherName string    `json:"teacher_name"`
	Capacity    int       `json:"capacity"`
	Enrolled    int       `json:"enrolled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields supplied when creating a course.
func (c *Course) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(c.Name)); n == 0 || n > MaxCourseNameLength {
		return ErrCourseName
	}
	if c.Capacity < 1 || c.Capacity > MaxCourseCapacity {
		return ErrCourseCapacity
	}
	return nil
}

// Grade is a student's score in one course. Score is nil until recorded.
type Grade struct {
	CourseID   int64  `json:"course_id"`
	CourseCode string `json:"course_code"`
	CourseName string `json:"course_name"`
	StudentID  int64  `json:"student_id"`
	Score      *int   `json:"score"`
}
