package photo

import (
	"context"
	"strings"
)

const DefaultThreshold = 0.8

// Validator confirms that a photo shows what it was searched for. Search
// relevance alone is unreliable, so the classifier gets the last word.
type Validator struct {
	classifier Classifier
	threshold  float64
}

// NewValidator creates a Validator. If threshold is 0, the default (0.8) is used.
func NewValidator(c Classifier, threshold float64) *Validator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Validator{classifier: c, threshold: threshold}
}

// Validate classifies the photo at url and reports whether tag is among the
// labels whose confidence strictly exceeds the threshold. The labels are
// returned for logging.
func (v *Validator) Validate(ctx context.Context, url, tag string) (bool, []Label, error) {
	labels, err := v.classifier.Classify(ctx, url)
	if err != nil {
		return false, nil, err
	}
	return Confirms(labels, tag, v.threshold), labels, nil
}

// Confirms reports whether tag appears among labels above threshold.
// Matching ignores case and surrounding whitespace.
func Confirms(labels []Label, tag string, threshold float64) bool {
	tag = strings.TrimSpace(tag)
	for _, l := range labels {
		if l.Confidence > threshold && strings.EqualFold(strings.TrimSpace(l.Name), tag) {
			return true
		}
	}
	return false
}
