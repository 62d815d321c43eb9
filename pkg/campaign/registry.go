package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrCampaignNotFound indicates no definition is registered for a campaign id.
var ErrCampaignNotFound = errors.New("campaign not found")

// Registry holds the loaded campaign definitions, keyed by campaign id.
// It is populated at startup and read-only afterwards, so lookups need no
// locking.
type Registry struct {
	logger      *slog.Logger
	definitions map[string]*Definition
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:      logger.With("module", "campaign_registry"),
		definitions: make(map[string]*Definition),
	}
}

// Register adds a validated definition to the registry.
func (r *Registry) Register(definition *Definition) error {
	if err := definition.Validate(); err != nil {
		return err
	}

	if _, exists := r.definitions[definition.CampaignID]; exists {
		return fmt.Errorf("campaign %s registered twice", definition.CampaignID)
	}

	r.definitions[definition.CampaignID] = definition

	return nil
}

// Definition returns the definition for a campaign id.
func (r *Registry) Definition(campaignID string) (*Definition, error) {
	definition, ok := r.definitions[campaignID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
	}

	return definition, nil
}

// Definitions returns all registered definitions.
func (r *Registry) Definitions() []*Definition {
	definitions := make([]*Definition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}

	return definitions
}

// LoadDirectory reads every *.json file in the given directory as a campaign
// definition, validates it against the definition schema, and registers it.
// Any invalid file aborts the load: a partially loaded campaign set would
// surface as missing-campaign errors at ingestion time, which is harder to
// diagnose than a startup failure.
func (r *Registry) LoadDirectory(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read campaign directory %s: %w", path, err)
	}

	loaded := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		fullPath := filepath.Join(path, entry.Name())

		definition, err := r.loadFile(fullPath)
		if err != nil {
			return err
		}

		if err := r.Register(definition); err != nil {
			return fmt.Errorf("failed to register %s: %w", fullPath, err)
		}

		r.logger.Info("Loaded campaign definition",
			"campaign_id", definition.CampaignID,
			"steps", len(definition.Steps),
			"file", entry.Name())

		loaded++
	}

	if loaded == 0 {
		return fmt.Errorf("no campaign definitions found in %s", path)
	}

	r.logger.Info("Campaign registry ready", "campaigns", loaded)

	return nil
}

func (r *Registry) loadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := validateDefinitionSchema(data); err != nil {
		return nil, fmt.Errorf("schema validation failed for %s: %w", path, err)
	}

	var definition Definition
	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &definition, nil
}
