package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/model"
)

type CourseService struct {
	db datastore.DataProviderFactory
}

func NewCourseService(db datastore.DataProviderFactory) *CourseService {
	return &CourseService{db: db}
}

var _ Courses = (*CourseService)(nil)

func (s *CourseService) Courses(ctx context.Context) ([]model.Course, error) {
	return s.db.NonTx().ListCourses(ctx)
}

func (s *CourseService) StudentCourses(ctx context.Context, studentID int64) ([]model.Course, error) {
	return s.db.NonTx().ListStudentCourses(ctx, studentID)
}

func (s *CourseService) Enroll(ctx context.Context, studentID, courseID int64) error {
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		return tx.Enroll(ctx, courseID, studentID)
	})
	switch {
	case errors.Is(err, datastore.ErrDuplicate):
		return fail(ErrConflict, "already enrolled in course %d", courseID)
	case errors.Is(err, datastore.ErrExhausted):
		return fail(ErrInvalid, "course %d is full", courseID)
	}
	return translate(err, fmt.Sprintf("course %d", courseID))
}

func (s *CourseService) Drop(ctx context.Context, studentID, courseID int64) error {
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		return tx.Drop(ctx, courseID, studentID)
	})
	return translate(err, fmt.Sprintf("enrollment in course %d", courseID))
}

// CreateCourse creates a course taught by the actor. Administrators may name
// any teacher instead.
func (s *CourseService) CreateCourse(ctx context.Context, actor Actor, c model.Course) (*model.Course, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.Code == "" {
		return nil, fail(ErrInvalid, "course code must not be empty")
	}
	if err := c.Validate(); err != nil {
		return nil, invalid(err)
	}
	if c.TeacherID == 0 {
		c.TeacherID = actor.UserID
	}
	if c.TeacherID != actor.UserID && !actor.IsAdmin() {
		return nil, fail(ErrForbidden, "teachers may only create their own courses")
	}

	var created *model.Course
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		teacher, err := tx.GetUserByID(ctx, c.TeacherID)
		if err != nil {
			return err
		}
		if teacher == nil {
			return fail(ErrNotFound, "teacher %d not found", c.TeacherID)
		}
		if teacher.Role != model.RoleTeacher && teacher.Role != model.RoleAdmin {
			return fail(ErrInvalid, "user %d is not a teacher", c.TeacherID)
		}
		if err := tx.CreateCourse(ctx, &c); err != nil {
			return err
		}
		created, err = tx.GetCourse(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, translate(err, "course "+c.Code)
	}
	return created, nil
}

// SetGrade records a score. Only the course's teacher or an administrator may grade.
func (s *CourseService) SetGrade(ctx context.Context, actor Actor, courseID, studentID int64, score int) error {
	if score < 0 || score > model.MaxScore {
		return invalid(model.ErrScoreRange)
	}
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		c, err := tx.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if c == nil {
			return fail(ErrNotFound, "course %d not found", courseID)
		}
		if c.TeacherID != actor.UserID && !actor.IsAdmin() {
			return fail(ErrForbidden, "only the teacher of %s may grade it", c.Code)
		}
		return tx.SetGrade(ctx, courseID, studentID, score)
	})
	return translate(err, fmt.Sprintf("enrollment of student %d", studentID))
}

func (s *CourseService) Grades(ctx context.Context, studentID int64) ([]model.Grade, error) {
	return s.db.NonTx().ListGrades(ctx, studentID)
}
