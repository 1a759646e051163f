package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/export"
)

const (
	reviewResource  = "review"
	exportPageSize  = 100
	exportMaxRows   = 10000
	exportTimestamp = "2006-01-02 15:04"
)

type reviewReader interface {
	List(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error)
	ListAnswers(ctx context.Context, reviewIDs []string) ([]models.ReviewAnswerDetail, error)
	RatingBuckets(ctx context.Context, subjectID string) ([]models.RatingBucket, error)
}

// ExportFile is a rendered review export.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ReviewService exposes the reviews of a subject to the people managing it.
type ReviewService struct {
	reviews reviewReader
	access  *AccessPolicy
	audit   auditLogger
	logger  *zap.Logger
	now     func() time.Time
}

// NewReviewService constructs ReviewService.
func NewReviewService(reviews reviewReader, access *AccessPolicy, audit auditLogger, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{reviews: reviews, access: access, audit: audit, logger: logger, now: time.Now}
}

// List returns a page of reviews with their answers, newest first.
func (s *ReviewService) List(ctx context.Context, claims *models.JWTClaims, filter models.ReviewFilter) ([]dto.ReviewItem, *models.Pagination, error) {
	if _, err := s.access.Subject(ctx, claims, filter.SubjectID); err != nil {
		return nil, nil, err
	}
	items, total, err := s.page(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

func (s *ReviewService) page(ctx context.Context, filter models.ReviewFilter) ([]dto.ReviewItem, int, error) {
	reviews, total, err := s.reviews.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	ids := make([]string, len(reviews))
	for i, r := range reviews {
		ids[i] = r.ID
	}
	answers, err := s.reviews.ListAnswers(ctx, ids)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}
	byReview := make(map[string][]models.ReviewAnswerDetail, len(reviews))
	for _, a := range answers {
		byReview[a.ReviewID] = append(byReview[a.ReviewID], a)
	}
	items := make([]dto.ReviewItem, len(reviews))
	for i, r := range reviews {
		items[i] = dto.ReviewItem{Review: r, Answers: byReview[r.ID]}
		if items[i].Answers == nil {
			items[i].Answers = []models.ReviewAnswerDetail{}
		}
	}
	return items, total, nil
}

// Stats computes the rating histogram of a subject. Reviews without a
// rating are not counted.
func (s *ReviewService) Stats(ctx context.Context, claims *models.JWTClaims, subjectID string) (*dto.SubjectStats, error) {
	subject, err := s.access.Subject(ctx, claims, subjectID)
	if err != nil {
		return nil, err
	}
	buckets, err := s.reviews.RatingBuckets(ctx, subject.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute ratings")
	}
	stats := &dto.SubjectStats{SubjectID: subject.ID, RatingStats: ratingStats(buckets)}
	return stats, nil
}

func ratingStats(buckets []models.RatingBucket) models.RatingStats {
	stats := models.RatingStats{Distribution: make(map[int]int, models.MaxStars)}
	for star := models.MinStars; star <= models.MaxStars; star++ {
		stats.Distribution[star] = 0
	}
	sum := 0
	for _, b := range buckets {
		if b.Rating < models.MinStars || b.Rating > models.MaxStars {
			continue
		}
		stats.Distribution[b.Rating] += b.Count
		stats.Count += b.Count
		sum += b.Rating * b.Count
	}
	if stats.Count > 0 {
		stats.Average = math.Round(float64(sum)/float64(stats.Count)*100) / 100
	}
	return stats
}

// Export renders every review of a subject matching filter.
func (s *ReviewService) Export(ctx context.Context, claims *models.JWTClaims, filter models.ReviewFilter, rawFormat string) (*ExportFile, error) {
	subject, err := s.access.Subject(ctx, claims, filter.SubjectID)
	if err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Validation("invalid format", []appErrors.FieldError{{Field: "format", Reason: err.Error()}})
	}
	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare export")
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Reviews - %s (%s)", subject.Name, subject.ClassName),
		Headers: []string{"Date", "Rating", "Comment", "Answers"},
	}
	filter.PageSize = exportPageSize
	for filter.Page = 1; ; filter.Page++ {
		items, total, err := s.page(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			dataset.Rows = append(dataset.Rows, exportRow(item))
		}
		if len(items) < exportPageSize || filter.Page*exportPageSize >= total || len(dataset.Rows) >= exportMaxRows {
			break
		}
	}

	content, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionReviewExport, reviewResource, subject.ID, map[string]interface{}{
		"format": format,
		"rows":   len(dataset.Rows),
	})
	return &ExportFile{
		Filename:    fmt.Sprintf("reviews-%s-%s.%s", subject.ID, s.now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

func exportRow(item dto.ReviewItem) map[string]string {
	rating := ""
	if item.Rating > 0 {
		rating = strconv.Itoa(item.Rating)
	}
	comment := ""
	if item.Comment != nil {
		comment = *item.Comment
	}
	parts := make([]string, 0, len(item.Answers))
	for _, a := range item.Answers {
		parts = append(parts, a.FieldLabel+": "+a.Value)
	}
	return map[string]string{
		"Date":    item.CreatedAt.UTC().Format(exportTimestamp),
		"Rating":  rating,
		"Comment": comment,
		"Answers": strings.Join(parts, " | "),
	}
}
