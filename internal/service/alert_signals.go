package service

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

// Lexicon entries are written without accents; comments are folded the same
// way before matching.
var negativeLexicon = []string{
	"incomprehensible", "pas clair", "pas compris", "rien compris", "confus", "confuse",
	"ennuyeux", "ennuyeuse", "inutile", "nul", "trop rapide", "trop vite", "trop dur",
	"difficile a suivre", "perdu", "perdue", "decu", "decue", "decevant", "mauvais",
	"horrible", "catastrophique", "desorganise", "bruyant",
	"confusing", "unclear", "boring", "useless", "too fast", "hard to follow",
	"lost", "terrible", "awful", "disappointing", "disorganized",
}

var positiveLexicon = []string{
	"excellent", "super", "genial", "passionnant", "interessant", "tres clair", "clair",
	"bien explique", "bravo", "parfait", "top", "motivant", "merci",
	"great", "awesome", "clear", "interesting", "engaging", "helpful",
	"loved", "perfect", "amazing", "well explained",
}

// foldText lowercases, strips diacritics and reduces punctuation to single
// spaces, padding the result so phrases can be matched on word boundaries.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// matchLexicon returns the entries found in folded text and the text with
// those matches blanked out, so "pas clair" is not read again as "clair".
func matchLexicon(folded string, lexicon []string) ([]string, string) {
	var hits []string
	for _, word := range lexicon {
		needle := " " + word + " "
		if !strings.Contains(folded, needle) {
			continue
		}
		hits = append(hits, word)
		// matches can share a boundary space, so replace one at a time
		for strings.Contains(folded, needle) {
			folded = strings.Replace(folded, needle, " ", 1)
		}
	}
	return hits, folded
}

// computeSignals aggregates ratings and keyword hits over a review window.
// Ratings of zero come from forms without a STARS field and are ignored in
// the average.
func computeSignals(reviews []models.Review, lowRatingMax int) dto.ReviewSignals {
	signals := dto.ReviewSignals{ReviewCount: len(reviews)}
	negative := make(map[string]bool)
	positive := make(map[string]bool)

	var sum, rated int
	for _, r := range reviews {
		if r.Rating > 0 {
			sum += r.Rating
			rated++
			if r.Rating <= lowRatingMax {
				signals.LowRatings++
			}
			if r.Rating == models.MaxStars {
				signals.PerfectRatings++
			}
		}
		if r.Comment == nil {
			continue
		}
		folded := foldText(*r.Comment)
		neg, rest := matchLexicon(folded, negativeLexicon)
		pos, _ := matchLexicon(rest, positiveLexicon)
		for _, w := range neg {
			negative[w] = true
		}
		for _, w := range pos {
			positive[w] = true
		}
	}
	if rated > 0 {
		signals.AverageRating = float64(sum) / float64(rated)
	}
	signals.NegativeKeywords = sortedKeys(negative)
	signals.PositiveKeywords = sortedKeys(positive)
	return signals
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
