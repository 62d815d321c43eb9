package template

import (
	"context"
	"fmt"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/models"
)

// Resolver maps (campaign, step, segment) to template content via the
// campaign registry and the template store.
type Resolver struct {
	registry *campaign.Registry
	store    Store
}

func NewResolver(registry *campaign.Registry, store Store) *Resolver {
	return &Resolver{registry: registry, store: store}
}

// Resolve returns the template key and content for a step. Every gap in the
// chain (unknown campaign, unknown step, uncovered segment, key without
// content) comes back wrapped in ErrTemplateNotFound so callers can treat
// the whole class as one terminal configuration error.
func (r *Resolver) Resolve(ctx context.Context, campaignID string, stepNumber int, segment models.Segment) (string, *Template, error) {
	definition, err := r.registry.Definition(campaignID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: campaign %s is not configured", ErrTemplateNotFound, campaignID)
	}

	key := definition.ResolveTemplate(stepNumber, segment)
	if key == "" {
		return "", nil, fmt.Errorf("%w: campaign %s step %d has no template for segment %s",
			ErrTemplateNotFound, campaignID, stepNumber, segment)
	}

	template, err := r.store.Get(ctx, key)
	if err != nil {
		return key, nil, fmt.Errorf("template store lookup failed for %s: %w", key, err)
	}

	if template == nil {
		return key, nil, fmt.Errorf("%w: key %s (campaign %s step %d segment %s)",
			ErrTemplateNotFound, key, campaignID, stepNumber, segment)
	}

	return key, template, nil
}
