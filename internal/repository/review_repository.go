package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

const reviewColumns = "r.id, r.form_id, r.subject_id, r.rating, r.comment, r.created_at"

// ReviewRepository persists submitted reviews and their answers.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreateWithAnswers writes a review and every answer in one transaction.
func (r *ReviewRepository) CreateWithAnswers(ctx context.Context, review *models.Review, answers []models.ReviewAnswer) (err error) {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create review: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertReview = `INSERT INTO reviews (id, form_id, subject_id, rating, comment, created_at) VALUES (:id, :form_id, :subject_id, :rating, :comment, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertReview, review); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}

	const insertAnswer = `INSERT INTO review_answers (id, review_id, field_id, value) VALUES (:id, :review_id, :field_id, :value)`
	for i := range answers {
		answer := &answers[i]
		if answer.ID == "" {
			answer.ID = uuid.NewString()
		}
		answer.ReviewID = review.ID
		if _, err = tx.NamedExecContext(ctx, insertAnswer, answer); err != nil {
			return fmt.Errorf("insert review answer: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create review: %w", err)
	}
	return nil
}

// ListBySubjectSince returns the reviews of a subject created at or after
// since, oldest first with ID as tie breaker.
func (r *ReviewRepository) ListBySubjectSince(ctx context.Context, subjectID string, since time.Time) ([]models.Review, error) {
	query := "SELECT " + reviewColumns + " FROM reviews r WHERE r.subject_id = $1 AND r.created_at >= $2 ORDER BY r.created_at ASC, r.id ASC"
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, subjectID, since); err != nil {
		return nil, fmt.Errorf("list subject reviews: %w", err)
	}
	return reviews, nil
}

// List returns a page of reviews for a subject, newest first.
func (r *ReviewRepository) List(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error) {
	base := "FROM reviews r JOIN review_forms f ON f.id = r.form_id WHERE r.subject_id = $1"
	args := []interface{}{filter.SubjectID}
	var conditions []string

	if filter.FormType != "" {
		args = append(args, filter.FormType)
		conditions = append(conditions, fmt.Sprintf("f.type = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("r.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("r.created_at < $%d", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	limit, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY r.created_at DESC, r.id DESC LIMIT %d OFFSET %d", reviewColumns, base, limit, offset)
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}
	return reviews, total, nil
}

// ListAnswers loads the answers of the given reviews with their field labels.
func (r *ReviewRepository) ListAnswers(ctx context.Context, reviewIDs []string) ([]models.ReviewAnswerDetail, error) {
	if len(reviewIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT a.id, a.review_id, a.field_id, a.value, f.label AS field_label, f.type AS field_type
FROM review_answers a
JOIN review_fields f ON f.id = a.field_id
WHERE a.review_id = ANY($1)
ORDER BY a.review_id, f.position`
	var answers []models.ReviewAnswerDetail
	if err := r.db.SelectContext(ctx, &answers, query, pq.Array(reviewIDs)); err != nil {
		return nil, fmt.Errorf("list review answers: %w", err)
	}
	return answers, nil
}

// RatingBuckets returns the histogram of non-zero ratings for a subject.
func (r *ReviewRepository) RatingBuckets(ctx context.Context, subjectID string) ([]models.RatingBucket, error) {
	const query = `SELECT rating, COUNT(*) AS count FROM reviews WHERE subject_id = $1 AND rating > 0 GROUP BY rating ORDER BY rating`
	var buckets []models.RatingBucket
	if err := r.db.SelectContext(ctx, &buckets, query, subjectID); err != nil {
		return nil, fmt.Errorf("rating buckets: %w", err)
	}
	return buckets, nil
}

// SubjectIDsWithReviewsSince lists subjects that received a review at or
// after since.
func (r *ReviewRepository) SubjectIDsWithReviewsSince(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT subject_id FROM reviews WHERE created_at >= $1 ORDER BY subject_id`, since); err != nil {
		return nil, fmt.Errorf("list reviewed subjects: %w", err)
	}
	return ids, nil
}
