package classifier

import (
	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/config"
)

// New builds the configured classifier. The keyword classifier is always
// built so configuration errors surface at startup and so the AI classifier
// has a fallback.
func New(cfg config.ClassifierConfig, completer Completer) (Classifier, error) {
	keyword, err := NewKeywordClassifier(cfg.Keywords.Interested, cfg.Keywords.MoreInformation)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "", "keyword":
		return keyword, nil
	case "ai":
		if completer == nil {
			return nil, apperrors.Configuration("classifier.provider", "ai classifier requires an AI client")
		}
		return NewAIClassifier(completer, keyword), nil
	default:
		return nil, apperrors.Configuration("classifier.provider", "unsupported provider %q", cfg.Provider)
	}
}
