package classify

import (
	"context"

	"github.com/securepatrol-id/securepatrol-backend/pkg/enums"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
)

// Classifier analyzes a captured evidence frame and returns a scene verdict.
// The submission workflow treats any error as a degraded, absorbable fault:
// classification never blocks a patrol record.
type Classifier interface {
	Classify(ctx context.Context, imageJPEG []byte) (models.ClassificationResult, error)
}

// Degraded is the placeholder verdict substituted when the classifier is
// unreachable or returns garbage. It flags the entry for manual review
// instead of losing the patrol record.
func Degraded(err error) models.ClassificationResult {
	summary := "Automatic analysis unavailable, manual review required."
	if err != nil {
		summary = "Automatic analysis unavailable (" + err.Error() + "), manual review required."
	}
	return models.ClassificationResult{
		Status:        enums.PatrolStatusAttention,
		Summary:       summary,
		ItemsDetected: []string{},
	}
}

// Disabled is a Classifier used when no API key is configured. Every call
// reports unavailability, which the workflow absorbs as a degraded verdict.
type Disabled struct{}

func (Disabled) Classify(context.Context, []byte) (models.ClassificationResult, error) {
	return models.ClassificationResult{}, errClassifierDisabled
}
