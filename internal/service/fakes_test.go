package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/llm"
)

const (
	testClassID   = "9b2f7f64-4c43-4e2a-9a3e-1b7a1c4d0001"
	testSubjectID = "9b2f7f64-4c43-4e2a-9a3e-1b7a1c4d0002"
	testTeacherID = "teacher-1"
)

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

type fakeClasses struct {
	items map[string]*models.Class
}

func (f *fakeClasses) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := f.items[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

type fakeSubjects struct {
	items map[string]*models.SubjectContext
	err   error
}

func newFakeSubjects(subjects ...*models.SubjectContext) *fakeSubjects {
	f := &fakeSubjects{items: make(map[string]*models.SubjectContext)}
	for _, s := range subjects {
		f.items[s.ID] = s
	}
	return f
}

func (f *fakeSubjects) FindContext(ctx context.Context, id string) (*models.SubjectContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.items[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSubjects) ListByClass(ctx context.Context, classID string) ([]models.Subject, error) {
	var out []models.Subject
	for _, s := range f.items {
		if s.ClassID == classID {
			out = append(out, s.Subject)
		}
	}
	return out, nil
}

func testSubject() *models.SubjectContext {
	return &models.SubjectContext{
		Subject:      models.Subject{ID: testSubjectID, Name: "Algorithmique", ClassID: testClassID},
		ClassName:    "L3 Info",
		TeacherID:    testTeacherID,
		TeacherName:  "Camille Martin",
		TeacherEmail: "camille@example.com",
	}
}

func testAccess(subjects *fakeSubjects) *AccessPolicy {
	classes := &fakeClasses{items: map[string]*models.Class{
		testClassID: {ID: testClassID, Name: "L3 Info", TeacherID: testTeacherID},
	}}
	return NewAccessPolicy(classes, subjects)
}

type fakeAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (f *fakeAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.logs))
	for i, l := range f.logs {
		out[i] = l.Action
	}
	return out
}

// fakeFormRepo keeps forms in memory and resolves active forms newest first.
type fakeFormRepo struct {
	forms   map[string]*models.ReviewForm
	fields  map[string][]models.ReviewField
	reviews map[string]int
	created []*models.ReviewForm
	active  int
}

func newFakeFormRepo() *fakeFormRepo {
	return &fakeFormRepo{
		forms:   make(map[string]*models.ReviewForm),
		fields:  make(map[string][]models.ReviewField),
		reviews: make(map[string]int),
	}
}

func (f *fakeFormRepo) add(form models.ReviewForm, fields ...models.ReviewField) {
	for i := range fields {
		fields[i].FormID = form.ID
	}
	f.forms[form.ID] = &form
	f.fields[form.ID] = fields
}

func (f *fakeFormRepo) FindActive(ctx context.Context, scope models.FormScope, formType models.FormType) ([]models.ReviewForm, error) {
	f.active++
	var out []models.ReviewForm
	for _, form := range f.forms {
		if form.Type != formType || !form.IsActive || form.Scope() != scope {
			continue
		}
		out = append(out, *form)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeFormRepo) FindByID(ctx context.Context, id string) (*models.ReviewForm, error) {
	if form, ok := f.forms[id]; ok {
		clone := *form
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeFormRepo) FindByPublicLink(ctx context.Context, link string) (*models.ReviewForm, error) {
	for _, form := range f.forms {
		if form.PublicLink == link {
			clone := *form
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeFormRepo) ListFields(ctx context.Context, formID string) ([]models.ReviewField, error) {
	return append([]models.ReviewField(nil), f.fields[formID]...), nil
}

func (f *fakeFormRepo) List(ctx context.Context, filter models.FormFilter) ([]models.ReviewForm, int, error) {
	var out []models.ReviewForm
	for _, form := range f.forms {
		if filter.Scope != nil && form.Scope() != *filter.Scope {
			continue
		}
		out = append(out, *form)
	}
	return out, len(out), nil
}

func (f *fakeFormRepo) CreateWithFields(ctx context.Context, form *models.ReviewForm, fields []models.ReviewField) error {
	form.ID = "form-" + string(rune('a'+len(f.created)))
	form.PublicLink = "link-" + form.ID
	form.CreatedAt = time.Now()
	f.created = append(f.created, form)
	if form.IsActive {
		for _, other := range f.forms {
			if other.Type == form.Type && other.Scope() == form.Scope() {
				other.IsActive = false
			}
		}
	}
	f.add(*form, fields...)
	return nil
}

func (f *fakeFormRepo) UpdateWithFields(ctx context.Context, form *models.ReviewForm, fields []models.ReviewField, replaceFields bool) error {
	clone := *form
	f.forms[form.ID] = &clone
	if replaceFields {
		f.fields[form.ID] = fields
	}
	return nil
}

func (f *fakeFormRepo) CountReviews(ctx context.Context, formID string) (int, error) {
	return f.reviews[formID], nil
}

func (f *fakeFormRepo) Delete(ctx context.Context, id string) error {
	delete(f.forms, id)
	delete(f.fields, id)
	return nil
}

// fakeReviewStore backs submission, engine and listing tests.
type fakeReviewStore struct {
	mu        sync.Mutex
	reviews   []models.Review
	answers   []models.ReviewAnswer
	createErr error
	listErr   error
	buckets   []models.RatingBucket
	subjects  []string
}

func (f *fakeReviewStore) CreateWithAnswers(ctx context.Context, review *models.Review, answers []models.ReviewAnswer) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	review.ID = "review-" + string(rune('0'+len(f.reviews)))
	review.CreatedAt = time.Now().UTC()
	f.reviews = append(f.reviews, *review)
	for _, a := range answers {
		a.ReviewID = review.ID
		f.answers = append(f.answers, a)
	}
	return nil
}

func (f *fakeReviewStore) ListBySubjectSince(ctx context.Context, subjectID string, since time.Time) ([]models.Review, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Review
	for _, r := range f.reviews {
		if r.SubjectID == subjectID && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) SubjectIDsWithReviewsSince(ctx context.Context, since time.Time) ([]string, error) {
	return f.subjects, nil
}

func (f *fakeReviewStore) List(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error) {
	var out []models.Review
	for _, r := range f.reviews {
		if r.SubjectID == filter.SubjectID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (f *fakeReviewStore) ListAnswers(ctx context.Context, reviewIDs []string) ([]models.ReviewAnswerDetail, error) {
	want := make(map[string]bool, len(reviewIDs))
	for _, id := range reviewIDs {
		want[id] = true
	}
	var out []models.ReviewAnswerDetail
	for _, a := range f.answers {
		if want[a.ReviewID] {
			out = append(out, models.ReviewAnswerDetail{ReviewAnswer: a, FieldLabel: "Label " + a.FieldID})
		}
	}
	return out, nil
}

func (f *fakeReviewStore) RatingBuckets(ctx context.Context, subjectID string) ([]models.RatingBucket, error) {
	return f.buckets, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	disabled bool
	response string
	err      error
	requests []llm.Request
}

func (f *fakeGenerator) Enabled() bool { return !f.disabled }

func (f *fakeGenerator) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
