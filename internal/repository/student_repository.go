package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

const enrollmentStatusActive = "ACTIVE"

// StudentRepository reads students and their class enrollments.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a single student or sql.ErrNoRows.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, nis, full_name, active FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListEnrolled returns the subset of studentIDs actively enrolled in the class.
func (r *StudentRepository) ListEnrolled(ctx context.Context, classID string, studentIDs []string) ([]models.Student, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT s.id, s.nis, s.full_name, s.active
FROM students s
JOIN enrollments e ON e.student_id = s.id
WHERE e.class_id = $1 AND e.status = $2 AND s.id = ANY($3)`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID, enrollmentStatusActive, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}
