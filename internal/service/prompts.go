package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

const maxCommentRunes = 500

const alertSystemPrompt = `You review anonymous student feedback about one course subject and decide whether the teacher should be alerted.
Answer with one JSON object and nothing else:
{"hasAlert": boolean, "type": "negative" | "positive", "severity": "low" | "medium" | "high", "title": string, "description": string}
When hasAlert is false the other keys may be omitted.
Raise a negative alert for recurring difficulties or dissatisfaction, a positive alert for clearly outstanding feedback.
Write title (at most 80 characters) and description (at most 3 sentences) in the language of the reviews.`

const summarySystemPrompt = `You summarise anonymous student feedback about one course subject for its teacher.
Write at most 5 sentences of plain text in the language of the reviews: what works, what does not, and one concrete suggestion.
Do not quote students verbatim and do not invent facts that are not in the reviews.`

const draftSystemPrompt = `You help a teacher answer their students after an alert about a course subject.
Answer with one JSON object and nothing else: {"subject": string, "message": string}
The subject is a short e-mail subject line. The message is a polite, concise note addressed to the students, in the language of the alert, acknowledging the feedback and stating what will change.`

// windowReviews keeps the most recent max reviews of a chronologically
// ordered slice and reports how many older ones were dropped.
func windowReviews(reviews []models.Review, max int) ([]models.Review, int) {
	if max <= 0 || len(reviews) <= max {
		return reviews, 0
	}
	omitted := len(reviews) - max
	return reviews[omitted:], omitted
}

func truncateRunes(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}

func writeReviewList(b *strings.Builder, reviews []models.Review, omitted int) {
	b.WriteString("Reviews (oldest first):\n")
	for i, r := range reviews {
		rating := "none"
		if r.Rating > 0 {
			rating = fmt.Sprintf("%d/5", r.Rating)
		}
		comment := "(no comment)"
		if r.Comment != nil && strings.TrimSpace(*r.Comment) != "" {
			comment = fmt.Sprintf("%q", truncateRunes(*r.Comment, maxCommentRunes))
		}
		fmt.Fprintf(b, "%d. [%s] rating %s - %s\n", i+1, r.CreatedAt.UTC().Format("2006-01-02 15:04"), rating, comment)
	}
	if omitted > 0 {
		fmt.Fprintf(b, "(%d older review(s) omitted)\n", omitted)
	}
}

func keywordList(words []string) string {
	if len(words) == 0 {
		return "none"
	}
	return strings.Join(words, ", ")
}

// buildAlertPrompt renders the classification prompt. Identical inputs
// always produce the same text.
func buildAlertPrompt(subject *models.SubjectContext, windowStart, windowEnd time.Time, reviews []models.Review, signals dto.ReviewSignals, maxReviews int) string {
	kept, omitted := windowReviews(reviews, maxReviews)

	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s (class: %s)\n", subject.Name, subject.ClassName)
	fmt.Fprintf(&b, "Window: %s to %s (UTC)\n", windowStart.UTC().Format("2006-01-02"), windowEnd.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "Statistics: %d review(s), average rating %.2f/5, %d low rating(s), %d perfect rating(s)\n",
		signals.ReviewCount, signals.AverageRating, signals.LowRatings, signals.PerfectRatings)
	fmt.Fprintf(&b, "Negative keywords: %s\n", keywordList(signals.NegativeKeywords))
	fmt.Fprintf(&b, "Positive keywords: %s\n\n", keywordList(signals.PositiveKeywords))
	writeReviewList(&b, kept, omitted)
	return b.String()
}

func buildSummaryPrompt(subject *models.SubjectContext, windowStart time.Time, reviews []models.Review, maxReviews int) string {
	kept, omitted := windowReviews(reviews, maxReviews)

	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s (class: %s)\n", subject.Name, subject.ClassName)
	fmt.Fprintf(&b, "Reviews since %s (UTC)\n\n", windowStart.UTC().Format("2006-01-02"))
	writeReviewList(&b, kept, omitted)
	return b.String()
}

func buildDraftPrompt(subject *models.SubjectContext, alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s (class: %s)\n", subject.Name, subject.ClassName)
	fmt.Fprintf(&b, "Alert type: %s, severity: %s\n", alert.Type, alert.Severity)
	fmt.Fprintf(&b, "Alert title: %s\n", alert.Title)
	fmt.Fprintf(&b, "Alert description: %s\n", alert.Description)
	if subject.TeacherName != "" {
		fmt.Fprintf(&b, "Sign the message as: %s\n", subject.TeacherName)
	}
	return b.String()
}

var errMalformedResponse = errors.New("malformed model response")

// decodeObject extracts a JSON object, tolerating a surrounding code fence.
func decodeObject(raw string) (map[string]json.RawMessage, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	var obj map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", errMalformedResponse)
	}
	return obj, nil
}

func requireString(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", errMalformedResponse, key)
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", errMalformedResponse, key)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", errMalformedResponse, key)
	}
	return v, nil
}

// parseDecision validates a classification answer. Anything missing or of
// the wrong type makes the whole answer unusable.
func parseDecision(raw string) (*dto.AlertDecision, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	flag, ok := obj["hasAlert"]
	if !ok {
		return nil, fmt.Errorf("%w: missing hasAlert", errMalformedResponse)
	}
	var hasAlert bool
	if err := json.Unmarshal(flag, &hasAlert); err != nil {
		return nil, fmt.Errorf("%w: hasAlert is not a boolean", errMalformedResponse)
	}
	if !hasAlert {
		return &dto.AlertDecision{HasAlert: false}, nil
	}

	decision := &dto.AlertDecision{HasAlert: true}
	kind, err := requireString(obj, "type")
	if err != nil {
		return nil, err
	}
	decision.Type = models.AlertType(strings.ToLower(kind))
	if !decision.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", errMalformedResponse, kind)
	}
	severity, err := requireString(obj, "severity")
	if err != nil {
		return nil, err
	}
	decision.Severity = models.AlertSeverity(strings.ToLower(severity))
	if !decision.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", errMalformedResponse, severity)
	}
	if decision.Title, err = requireString(obj, "title"); err != nil {
		return nil, err
	}
	if decision.Description, err = requireString(obj, "description"); err != nil {
		return nil, err
	}
	return decision, nil
}

func parseDraft(raw string) (subject, message string, err error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return "", "", err
	}
	if subject, err = requireString(obj, "subject"); err != nil {
		return "", "", err
	}
	if message, err = requireString(obj, "message"); err != nil {
		return "", "", err
	}
	return subject, message, nil
}
