package ai

import "github.com/intentflow/intentflow/pkg/models"

// Aliases for the provider sentinels, which live in pkg/models so the
// provider subpackages never import this package back.
var (
	ErrProviderUnavailable = models.ErrProviderUnavailable
	ErrInferenceTimeout    = models.ErrInferenceTimeout
	ErrInvalidResponse     = models.ErrInvalidResponse
)
