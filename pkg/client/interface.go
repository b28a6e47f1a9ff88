package client

import (
	"context"

	"github.com/menta2k/dental-analyzer/pkg/types"
)

// VisionClient is a vision model backend able to classify images
type VisionClient interface {
	// Load makes sure the model is available on the backend
	Load(ctx context.Context, model string) error
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	Classify(ctx context.Context, model, prompt, imgB64 string) (*types.ClassificationResult, error)
}
