package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/persistence/file"
	"github.com/cadencehq/cadence/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())

	registry := campaign.NewRegistry(slog.Default())
	err := registry.Register(&campaign.Definition{
		CampaignID: "onboarding",
		Name:       "Onboarding",
		Steps: []campaign.StepDefinition{
			{StepNumber: 1, Offset: 0, Template: "welcome"},
			{StepNumber: 2, Offset: 48 * time.Hour, Template: "tips"},
		},
	})
	require.NoError(t, err)

	return web.NewApp(slog.Default(), persistence, registry, nil)
}

func postTrigger(t *testing.T, app *fiber.App, payload any) (*http.Response, web.TriggerResponse) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/trigger", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	var triggerResp web.TriggerResponse

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	if resp.StatusCode == http.StatusAccepted {
		require.NoError(t, json.Unmarshal(raw, &triggerResp))
	}

	return resp, triggerResp
}

func TestPostTrigger(t *testing.T) {
	app := setupTestApp(t)

	t.Run("creates sequence", func(t *testing.T) {
		resp, triggerResp := postTrigger(t, app, web.TriggerRequest{
			RecipientID:  "r-1",
			CampaignID:   "onboarding",
			SignalCounts: map[string]int{"critical_count": 2},
		})

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.True(t, triggerResp.Created)
		assert.NotEmpty(t, triggerResp.SequenceID)
	})

	t.Run("duplicate returns same sequence id", func(t *testing.T) {
		_, first := postTrigger(t, app, web.TriggerRequest{RecipientID: "r-2", CampaignID: "onboarding"})
		resp, second := postTrigger(t, app, web.TriggerRequest{RecipientID: "r-2", CampaignID: "onboarding"})

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.False(t, second.Created)
		assert.Equal(t, first.SequenceID, second.SequenceID)
	})

	t.Run("missing recipient_id", func(t *testing.T) {
		resp, _ := postTrigger(t, app, map[string]any{"campaign_id": "onboarding"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		resp, _ := postTrigger(t, app, web.TriggerRequest{RecipientID: "r-3", CampaignID: "nope"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/trigger", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetSequence(t *testing.T) {
	app := setupTestApp(t)

	_, created := postTrigger(t, app, web.TriggerRequest{
		RecipientID: "r-1",
		CampaignID:  "onboarding",
		Attributes:  map[string]string{"first_name": "Ada"},
	})

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/sequences/"+created.SequenceID, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var seqResp web.SequenceResponse
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &seqResp))

		assert.Equal(t, "r-1", seqResp.RecipientID)
		require.Len(t, seqResp.Steps, 2)
		assert.Equal(t, "pending", string(seqResp.Steps[0].Status))
		assert.Equal(t, seqResp.AnchorTime.Add(48*time.Hour), seqResp.Steps[1].ScheduledAt)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/sequences/missing", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestListSequences(t *testing.T) {
	app := setupTestApp(t)

	postTrigger(t, app, web.TriggerRequest{RecipientID: "r-1", CampaignID: "onboarding"})
	postTrigger(t, app, web.TriggerRequest{RecipientID: "r-2", CampaignID: "onboarding"})

	req := httptest.NewRequest(http.MethodGet, "/sequences/?recipient_id=r-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listResp struct {
		Sequences  []web.SequenceResponse `json:"sequences"`
		TotalCount int                    `json:"total_count"`
	}

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &listResp))

	require.Equal(t, 1, listResp.TotalCount)
	assert.Equal(t, "r-1", listResp.Sequences[0].RecipientID)
}

func TestCampaignEndpoints(t *testing.T) {
	app := setupTestApp(t)

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/campaigns/", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("get known", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/campaigns/onboarding", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var campaignResp web.CampaignResponse
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &campaignResp))
		assert.Equal(t, "48h0m0s", campaignResp.Steps[1].Offset)
	})

	t.Run("get unknown", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/campaigns/nope", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
