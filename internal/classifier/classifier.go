package classifier

import (
	"context"
	"strings"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/models"
)

// Classifier maps message content to a Category.
type Classifier interface {
	Classify(ctx context.Context, body string) (models.Category, error)
}

// KeywordClassifier matches case-insensitive substrings against two disjoint
// keyword sets. Interested wins over MoreInformation; anything else is
// NotInterested.
type KeywordClassifier struct {
	interested      []string
	moreInformation []string
}

// NewKeywordClassifier validates and normalizes the keyword sets. Both sets
// must be non-empty and must not share a keyword.
func NewKeywordClassifier(interested, moreInformation []string) (*KeywordClassifier, error) {
	in := normalize(interested)
	more := normalize(moreInformation)

	if len(in) == 0 {
		return nil, apperrors.Configuration("classifier.keywords.interested", "keyword set is empty")
	}
	if len(more) == 0 {
		return nil, apperrors.Configuration("classifier.keywords.more_information", "keyword set is empty")
	}

	seen := make(map[string]struct{}, len(in))
	for _, kw := range in {
		seen[kw] = struct{}{}
	}
	for _, kw := range more {
		if _, dup := seen[kw]; dup {
			return nil, apperrors.Configuration("classifier.keywords", "keyword %q appears in more than one set", kw)
		}
	}

	return &KeywordClassifier{interested: in, moreInformation: more}, nil
}

// Classify never fails; the error is part of the Classifier contract.
func (k *KeywordClassifier) Classify(_ context.Context, body string) (models.Category, error) {
	return k.Match(body), nil
}

// Match is the pure classification function.
func (k *KeywordClassifier) Match(body string) models.Category {
	text := strings.ToLower(body)
	if strings.TrimSpace(text) == "" {
		return models.CategoryNotInterested
	}
	if containsAny(text, k.interested) {
		return models.CategoryInterested
	}
	if containsAny(text, k.moreInformation) {
		return models.CategoryMoreInformation
	}
	return models.CategoryNotInterested
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// normalize lowercases, trims and drops blank or repeated keywords. A blank
// keyword would match every message.
func normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
