package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"smart-mail-responder/internal/models"
)

// Completer is the chat completion capability used by AIClassifier.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

var categoryDescriptions = map[models.Category]string{
	models.CategoryInterested:      "the sender wants to connect, talk, or take part",
	models.CategoryMoreInformation: "the sender asks questions or wants more details before deciding",
	models.CategoryNotInterested:   "the sender declines, or the message is unrelated",
}

// AIClassifier asks a language model for the category and falls back to a
// keyword classifier when the model fails or answers with an unknown label.
type AIClassifier struct {
	client   Completer
	fallback Classifier
}

// NewAIClassifier wraps client with fallback.
func NewAIClassifier(client Completer, fallback Classifier) *AIClassifier {
	return &AIClassifier{client: client, fallback: fallback}
}

func (a *AIClassifier) Classify(ctx context.Context, body string) (models.Category, error) {
	if strings.TrimSpace(body) == "" {
		return models.CategoryNotInterested, nil
	}

	answer, err := a.client.Complete(ctx, systemPrompt(), body)
	if err != nil {
		logrus.WithError(err).Warn("AI classification failed, using keyword classifier")
		return a.fallback.Classify(ctx, body)
	}

	category, ok := matchCategory(answer)
	if !ok {
		logrus.WithField("answer", answer).Warn("AI returned an unknown category, using keyword classifier")
		return a.fallback.Classify(ctx, body)
	}
	return category, nil
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify replies to an outreach email. Answer with exactly one category name from this list:\n")
	for _, c := range models.Categories() {
		fmt.Fprintf(&b, "- %s: %s\n", c, categoryDescriptions[c])
	}
	b.WriteString("Respond with the category name only.")
	return b.String()
}

// matchCategory accepts an exact name first, then the first name contained
// in the answer. not_interested is checked before interested because it
// contains it.
func matchCategory(answer string) (models.Category, bool) {
	if c, err := models.ParseCategory(answer); err == nil {
		return c, true
	}

	text := strings.ToLower(answer)
	text = strings.NewReplacer(" ", "_", "-", "_").Replace(text)
	for _, c := range []models.Category{models.CategoryNotInterested, models.CategoryMoreInformation, models.CategoryInterested} {
		if strings.Contains(text, string(c)) {
			return c, true
		}
	}
	return "", false
}
