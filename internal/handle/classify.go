package handle

import (
	"strings"

	"uniauth/internal/domain"
)

// Classifier derives an Identity's classification. Call sites depend on this
// interface only, so the prefix encoding can later be replaced by a stored
// kind without touching them.
type Classifier interface {
	Classify(h string) domain.Classification
}

// PrefixClassifier classifies by handle prefix: "tmp-" for placeholders and
// "<tag>-" for each registered auth-method tag.
type PrefixClassifier struct {
	Tags []string
}

func NewClassifier(tags ...string) PrefixClassifier {
	return PrefixClassifier{Tags: tags}
}

func (c PrefixClassifier) Classify(h string) domain.Classification {
	switch {
	case h == "":
		return domain.Anonymous
	case strings.HasPrefix(h, PlaceholderPrefix):
		return domain.Placeholder
	}
	for _, tag := range c.Tags {
		if tag != "" && strings.HasPrefix(h, tag+"-") {
			return domain.Unlinked
		}
	}
	return domain.Standard
}

// IsTemporary reports whether the holder of h must finish signup before using
// protected resources: placeholders always, unlinked accounts only when
// standalone institution accounts are disallowed.
func IsTemporary(c Classifier, h string, allowStandalone bool) bool {
	switch c.Classify(h) {
	case domain.Placeholder:
		return true
	case domain.Unlinked:
		return !allowStandalone
	default:
		return false
	}
}
