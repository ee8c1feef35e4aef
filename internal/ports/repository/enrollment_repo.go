package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin.engine/internal/core/model"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EnrollmentRepository reads face enrollments stored as pgvector columns.
type EnrollmentRepository struct {
	DB *sql.DB
}

func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

// GetActiveEnrollment returns the newest active enrollment, or nil if the user has none.
func (r *EnrollmentRepository) GetActiveEnrollment(ctx context.Context, userID string) (*model.EnrollmentRecord, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.user_id", userID))

	query := `
		SELECT user_id, descriptor, model_version, active, enrolled_at
		FROM face_enrollments
		WHERE user_id = $1 AND active
		ORDER BY enrolled_at DESC
		LIMIT 1
	`

	var (
		rec model.EnrollmentRecord
		vec pgvector.Vector
	)
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&rec.UserID, &vec, &rec.ModelVersion, &rec.Active, &rec.EnrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query enrollment: %w", err)
	}

	rec.Descriptor = vec.Slice()
	return &rec, nil
}
