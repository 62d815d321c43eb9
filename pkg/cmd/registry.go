package cmd

import (
	"fmt"
	"log/slog"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/template"
)

// NewCampaignRegistry loads all campaign definitions from the given
// directory. The process refuses to start on an invalid catalog; a half
// loaded catalog would silently drop triggers for the missing campaigns.
func NewCampaignRegistry(logger *slog.Logger, campaignsPath string) *campaign.Registry {
	registry := campaign.NewRegistry(logger)

	if err := registry.LoadDirectory(campaignsPath); err != nil {
		panic(fmt.Errorf("failed to load campaign definitions from %s: %w", campaignsPath, err))
	}

	return registry
}

// NewTemplateStore serves template content from a directory of JSON files.
func NewTemplateStore(templatesPath string) template.Store {
	return template.NewFileStore(templatesPath)
}
