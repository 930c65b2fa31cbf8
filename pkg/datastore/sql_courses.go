package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NicolasHaas/campus/pkg/model"
)

const courseQuery = `SELECT c.id, c.code, c.name, c.teacher_id, u.display_name, c.capacity,
	(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id), c.created_at
	FROM courses c JOIN users u ON u.id = c.teacher_id`

func scanCourse(row rowScanner) (*model.Course, error) {
	c := &model.Course{}
	var createdAt string
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.TeacherID, &c.TeacherName, &c.Capacity, &c.Enrolled, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parsed
	return c, nil
}

func (s *baseProvider) queryCourses(ctx context.Context, query string, args ...any) ([]model.Course, error) {
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("datastore: list courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var courses []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan course: %w", err)
		}
		courses = append(courses, *c)
	}
	return courses, rows.Err()
}

func (s *baseProvider) CreateCourse(ctx context.Context, course *model.Course) error {
	res, err := s.ExecContext(ctx, "INSERT INTO courses (code, name, teacher_id, capacity) VALUES (?, ?, ?, ?)",
		course.Code, course.Name, course.TeacherID, course.Capacity)
	if isUniqueViolation(err) {
		return fmt.Errorf("datastore: course %q: %w", course.Code, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("datastore: create course: %w", err)
	}
	course.ID, _ = res.LastInsertId()
	course.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// GetCourse retrieves a course by ID. Returns (nil, nil) if not found.
func (s *baseProvider) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	c, err := scanCourse(s.QueryRowContext(ctx, courseQuery+" WHERE c.id = ?", id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get course: %w", err)
	}
	return c, nil
}

func (s *baseProvider) ListCourses(ctx context.Context) ([]model.Course, error) {
	return s.queryCourses(ctx, courseQuery+" ORDER BY c.code")
}

func (s *baseProvider) ListStudentCourses(ctx context.Context, studentID int64) ([]model.Course, error) {
	return s.queryCourses(ctx, courseQuery+` WHERE c.id IN (SELECT course_id FROM enrollments WHERE student_id = ?)
		ORDER BY c.code`, studentID)
}

// Enroll adds the student to the course. ErrExhausted when the course is full,
// ErrDuplicate when already enrolled.
func (s *baseProvider) Enroll(ctx context.Context, courseID, studentID int64) error {
	var capacity, enrolled int
	err := s.QueryRowContext(ctx, `SELECT capacity, (SELECT COUNT(*) FROM enrollments WHERE course_id = ?)
		FROM courses WHERE id = ?`, courseID, courseID).Scan(&capacity, &enrolled)
	if noRows(err) {
		return fmt.Errorf("datastore: enroll: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("datastore: enroll: %w", err)
	}
	if enrolled >= capacity {
		return fmt.Errorf("datastore: enroll: course full: %w", ErrExhausted)
	}

	_, err = s.ExecContext(ctx, "INSERT INTO enrollments (course_id, student_id) VALUES (?, ?)", courseID, studentID)
	if isUniqueViolation(err) {
		return fmt.Errorf("datastore: enroll: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("datastore: enroll: %w", err)
	}
	return nil
}

func (s *baseProvider) Drop(ctx context.Context, courseID, studentID int64) error {
	res, err := s.ExecContext(ctx, "DELETE FROM enrollments WHERE course_id = ? AND student_id = ?", courseID, studentID)
	if err != nil {
		return fmt.Errorf("datastore: drop: %w", err)
	}
	return requireAffected(res, "drop")
}

// SetGrade records a score for an enrolled student.
func (s *baseProvider) SetGrade(ctx context.Context, courseID, studentID int64, score int) error {
	res, err := s.ExecContext(ctx, "UPDATE enrollments SET score = ? WHERE course_id = ? AND student_id = ?", score, courseID, studentID)
	if err != nil {
		return fmt.Errorf("datastore: set grade: %w", err)
	}
	return requireAffected(res, "set grade")
}

func (s *baseProvider) ListGrades(ctx context.Context, studentID int64) ([]model.Grade, error) {
	rows, err := s.QueryContext(ctx, `SELECT c.id, c.code, c.name, e.student_id, e.score
		FROM enrollments e JOIN courses c ON c.id = e.course_id
		WHERE e.student_id = ? ORDER BY c.code`, studentID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list grades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var grades []model.Grade
	for rows.Next() {
		var g model.Grade
		var score sql.NullInt64
		if err := rows.Scan(&g.CourseID, &g.CourseCode, &g.CourseName, &g.StudentID, &score); err != nil {
			return nil, fmt.Errorf("datastore: scan grade: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			g.Score = &v
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}
