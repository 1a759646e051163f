package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
)

const subjectField = "subject_id"

type submissionFormReader interface {
	FindByPublicLink(ctx context.Context, link string) (*models.ReviewForm, error)
	ListFields(ctx context.Context, formID string) ([]models.ReviewField, error)
}

type submissionSubjectReader interface {
	FindContext(ctx context.Context, id string) (*models.SubjectContext, error)
	ListByClass(ctx context.Context, classID string) ([]models.Subject, error)
}

type reviewWriter interface {
	CreateWithAnswers(ctx context.Context, review *models.Review, answers []models.ReviewAnswer) error
}

// SubmissionTrigger is told about subjects that just received a review.
type SubmissionTrigger interface {
	Notify(subjectID string)
}

// SubmissionService accepts anonymous answers posted to a public form link.
type SubmissionService struct {
	forms    submissionFormReader
	subjects submissionSubjectReader
	reviews  reviewWriter
	trigger  SubmissionTrigger
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewSubmissionService constructs SubmissionService. trigger may be nil.
func NewSubmissionService(forms submissionFormReader, subjects submissionSubjectReader, reviews reviewWriter, trigger SubmissionTrigger, metrics *MetricsService, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{forms: forms, subjects: subjects, reviews: reviews, trigger: trigger, metrics: metrics, logger: logger}
}

// Submit validates every answer against the form and stores the review with
// its answers atomically. All problems are reported in one validation error.
func (s *SubmissionService) Submit(ctx context.Context, link string, req dto.SubmissionRequest) (*dto.SubmissionResult, error) {
	result, err := s.submit(ctx, link, req)
	if err != nil {
		s.metrics.RecordSubmission(appErrors.FromError(err).Code)
		return nil, err
	}
	s.metrics.RecordSubmission("accepted")
	return result, nil
}

func (s *SubmissionService) submit(ctx context.Context, link string, req dto.SubmissionRequest) (*dto.SubmissionResult, error) {
	form, err := s.forms.FindByPublicLink(ctx, link)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	if !form.IsActive {
		return nil, appErrors.ErrInactiveForm
	}

	fields, err := s.forms.ListFields(ctx, form.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form fields")
	}

	subjectID, subjectProblem, err := s.resolveSubject(ctx, form, req.SubjectID)
	if err != nil {
		return nil, err
	}

	answers, problems := validateAnswers(fields, req.Answers)
	if subjectProblem != nil {
		problems = append([]dto.AnswerError{*subjectProblem}, problems...)
	}
	if len(problems) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "submission rejected", problems)
	}

	review := &models.Review{FormID: form.ID, SubjectID: subjectID}
	review.Rating, review.Comment = summarizeAnswers(fields, answers)

	if err := s.reviews.CreateWithAnswers(ctx, review, answers); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store review")
	}

	s.logger.Debug("review stored",
		zap.String("review_id", review.ID),
		zap.String("form_id", form.ID),
		zap.String("subject_id", subjectID),
		zap.Int("answers", len(answers)))

	if s.trigger != nil {
		s.trigger.Notify(subjectID)
	}
	return &dto.SubmissionResult{ReviewID: review.ID}, nil
}

// resolveSubject picks the subject a submission is about. A class form only
// accepts subjects of its class and defaults to the class's only subject.
func (s *SubmissionService) resolveSubject(ctx context.Context, form *models.ReviewForm, requested *string) (string, *dto.AnswerError, error) {
	scope := form.Scope()
	if requested == nil || strings.TrimSpace(*requested) == "" {
		if scope.IsGlobal() {
			return "", &dto.AnswerError{FieldID: subjectField, Reason: "is required"}, nil
		}
		subjects, err := s.subjects.ListByClass(ctx, scope.ClassID)
		if err != nil {
			return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class subjects")
		}
		if len(subjects) != 1 {
			return "", &dto.AnswerError{FieldID: subjectField, Reason: "is required when the class has several subjects"}, nil
		}
		return subjects[0].ID, nil, nil
	}

	id := strings.TrimSpace(*requested)
	if _, err := uuid.Parse(id); err != nil {
		return "", &dto.AnswerError{FieldID: subjectField, Reason: "is not a valid identifier"}, nil
	}
	subject, err := s.subjects.FindContext(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return "", &dto.AnswerError{FieldID: subjectField, Reason: "does not exist"}, nil
		}
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if !scope.IsGlobal() && subject.ClassID != scope.ClassID {
		return "", &dto.AnswerError{FieldID: subjectField, Reason: "does not belong to the form's class"}, nil
	}
	return subject.ID, nil, nil
}

// validateAnswers checks answers against field definitions. Blank STARS and
// RADIO answers to optional fields are dropped; optional TEXTAREA answers are
// kept as submitted, empty included.
func validateAnswers(fields []models.ReviewField, inputs []dto.AnswerInput) ([]models.ReviewAnswer, []dto.AnswerError) {
	byID := make(map[string]models.ReviewField, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}

	var problems []dto.AnswerError
	answered := make(map[string]bool, len(inputs))
	seen := make(map[string]bool, len(inputs))
	answers := make([]models.ReviewAnswer, 0, len(inputs))

	for _, in := range inputs {
		field, ok := byID[in.FieldID]
		if !ok {
			problems = append(problems, dto.AnswerError{FieldID: in.FieldID, Reason: "unknown field"})
			continue
		}
		if seen[in.FieldID] {
			problems = append(problems, dto.AnswerError{FieldID: field.ID, Label: field.Label, Reason: "answered more than once"})
			continue
		}
		seen[in.FieldID] = true

		value := in.Value
		if field.Type != models.FieldTypeTextarea {
			value = strings.TrimSpace(value)
		}
		if strings.TrimSpace(value) == "" {
			if field.Type == models.FieldTypeTextarea && !field.Required {
				answers = append(answers, models.ReviewAnswer{FieldID: field.ID, Value: value})
			}
			continue
		}
		if reason := checkValue(field, value); reason != "" {
			problems = append(problems, dto.AnswerError{FieldID: field.ID, Label: field.Label, Reason: reason})
			continue
		}
		answered[field.ID] = true
		answers = append(answers, models.ReviewAnswer{FieldID: field.ID, Value: value})
	}

	for _, f := range fields {
		if f.Required && !answered[f.ID] && !hasProblem(problems, f.ID) {
			problems = append(problems, dto.AnswerError{FieldID: f.ID, Label: f.Label, Reason: "is required"})
		}
	}
	return answers, problems
}

func checkValue(field models.ReviewField, value string) string {
	switch field.Type {
	case models.FieldTypeStars:
		n, err := strconv.Atoi(value)
		if err != nil || n < models.MinStars || n > models.MaxStars {
			return "must be an integer between 1 and 5"
		}
	case models.FieldTypeRadio:
		if !field.HasOption(value) {
			return "is not one of the allowed options"
		}
	}
	return ""
}

func hasProblem(problems []dto.AnswerError, fieldID string) bool {
	for _, p := range problems {
		if p.FieldID == fieldID {
			return true
		}
	}
	return false
}

// summarizeAnswers derives the rating from the first STARS field in display
// order and joins TEXTAREA answers into the comment.
func summarizeAnswers(fields []models.ReviewField, answers []models.ReviewAnswer) (int, *string) {
	ordered := append([]models.ReviewField(nil), fields...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	values := make(map[string]string, len(answers))
	for _, a := range answers {
		values[a.FieldID] = a.Value
	}

	rating := 0
	var comments []string
	for _, f := range ordered {
		value, ok := values[f.ID]
		if !ok {
			continue
		}
		switch f.Type {
		case models.FieldTypeStars:
			if rating == 0 {
				rating, _ = strconv.Atoi(value)
			}
		case models.FieldTypeTextarea:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				comments = append(comments, trimmed)
			}
		}
	}
	if len(comments) == 0 {
		return rating, nil
	}
	comment := strings.Join(comments, "\n\n")
	return rating, &comment
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
