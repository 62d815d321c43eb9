package template

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/log"
	"github.com/cadencehq/cadence/pkg/models"
)

func TestRender(t *testing.T) {
	attributes := map[string]string{
		"first_name": "Ada",
		"company":    "Acme",
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "all placeholders resolved",
			input:    "Hi {{first_name}}, welcome to {{company}}!",
			expected: "Hi Ada, welcome to Acme!",
		},
		{
			name:     "missing placeholder stays literal",
			input:    "Hi {{first_name}}, your plan is {{plan_name}}.",
			expected: "Hi Ada, your plan is {{plan_name}}.",
		},
		{
			name:     "whitespace inside markers",
			input:    "Hi {{ first_name }}!",
			expected: "Hi Ada!",
		},
		{
			name:     "no placeholders",
			input:    "Plain text.",
			expected: "Plain text.",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Render(tt.input, attributes))
		})
	}
}

func TestRender_NilAttributes(t *testing.T) {
	// Rendering never fails; with no attributes everything stays literal.
	out := Render("Hi {{first_name}}", nil)
	assert.Equal(t, "Hi {{first_name}}", out)
	assert.True(t, HasUnresolved(out))
}

func TestPlaceholders(t *testing.T) {
	names := Placeholders("{{a}} {{b}} {{ a }} text {{c.d}}")
	assert.Equal(t, []string{"a", "b", "c.d"}, names)
}

func TestFileStore_Get(t *testing.T) {
	dir := t.TempDir()

	content := `{"subject": "Welcome {{first_name}}", "body": "Hello from {{company}}."}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome-1.json"), []byte(content), 0o600))

	store := NewFileStore(dir)

	template, err := store.Get(t.Context(), "welcome-1")
	require.NoError(t, err)
	require.NotNil(t, template)
	assert.Equal(t, "Welcome {{first_name}}", template.Subject)

	// Not found is nil, nil, distinct from an error.
	template, err = store.Get(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, template)

	// Path traversal in keys is treated as not found.
	template, err = store.Get(t.Context(), "../welcome-1")
	require.NoError(t, err)
	assert.Nil(t, template)
}

func testRegistry(t *testing.T) *campaign.Registry {
	t.Helper()

	registry := campaign.NewRegistry(log.WithModule("test"))
	require.NoError(t, registry.Register(&campaign.Definition{
		CampaignID: "welcome",
		Name:       "Welcome",
		Steps: []campaign.StepDefinition{
			{StepNumber: 1, Offset: 0, Template: "welcome-1"},
			{StepNumber: 2, Offset: time.Hour, SegmentTemplates: map[models.Segment]string{
				models.SegmentCritical: "welcome-2-critical",
				models.SegmentElevated: "welcome-2-elevated",
				models.SegmentBaseline: "welcome-2-baseline",
			}},
		},
	}))

	return registry
}

func TestResolver_Resolve(t *testing.T) {
	store := NewMapStore(map[string]Template{
		"welcome-1":          {Subject: "s1", Body: "b1"},
		"welcome-2-critical": {Subject: "s2c", Body: "b2c"},
	})
	resolver := NewResolver(testRegistry(t), store)

	key, template, err := resolver.Resolve(t.Context(), "welcome", 1, models.SegmentBaseline)
	require.NoError(t, err)
	assert.Equal(t, "welcome-1", key)
	assert.Equal(t, "s1", template.Subject)

	key, template, err = resolver.Resolve(t.Context(), "welcome", 2, models.SegmentCritical)
	require.NoError(t, err)
	assert.Equal(t, "welcome-2-critical", key)
	assert.Equal(t, "b2c", template.Body)
}

func TestResolver_Resolve_ConfigurationErrors(t *testing.T) {
	store := NewMapStore(map[string]Template{"welcome-1": {Subject: "s", Body: "b"}})
	resolver := NewResolver(testRegistry(t), store)

	// Unknown campaign.
	_, _, err := resolver.Resolve(t.Context(), "ghost", 1, models.SegmentBaseline)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	// Unknown step.
	_, _, err = resolver.Resolve(t.Context(), "welcome", 9, models.SegmentBaseline)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	// Key resolves but the store has no content for it.
	_, _, err = resolver.Resolve(t.Context(), "welcome", 2, models.SegmentElevated)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
