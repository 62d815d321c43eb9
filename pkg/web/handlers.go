package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/sequence"
)

type APIHandlers struct {
	sequenceService *sequence.Service
	repo            persistence.SequenceRepository
	registry        *campaign.Registry
	validator       *validator.Validate
	storageHealth   func(ctx context.Context) error
}

func NewAPIHandlers(
	sequenceService *sequence.Service,
	repo persistence.SequenceRepository,
	registry *campaign.Registry,
	validate *validator.Validate,
	storageHealth func(ctx context.Context) error,
) *APIHandlers {
	return &APIHandlers{
		sequenceService: sequenceService,
		repo:            repo,
		registry:        registry,
		validator:       validate,
		storageHealth:   storageHealth,
	}
}

// PostTrigger ingests one trigger event. The response is 202 in both
// outcomes; Created in the body tells a new sequence from an absorbed
// duplicate, and replaying the same trigger always returns the same
// sequence id.
func (h *APIHandlers) PostTrigger(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	seq, created, err := h.sequenceService.ProcessTrigger(c.Context(), models.TriggerEvent{
		RecipientID:  req.RecipientID,
		CampaignID:   req.CampaignID,
		AnchorTime:   req.AnchorTime,
		SignalCounts: req.SignalCounts,
		Attributes:   req.Attributes,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{
		SequenceID: seq.ID,
		Created:    created,
	})
}

func (h *APIHandlers) GetSequence(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Sequence ID is required")
	}

	seq, err := h.repo.SequenceByID(c.Context(), id)
	if err != nil {
		if persistence.IsSequenceNotFound(err) {
			return notFound(c, "Sequence not found")
		}

		return internalError(c, err)
	}

	return c.JSON(TransformSequenceResponse(seq))
}

func (h *APIHandlers) ListSequences(c fiber.Ctx) error {
	opts := persistence.ListSequencesOptions{
		RecipientID: c.Query("recipient_id"),
		CampaignID:  c.Query("campaign_id"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return badRequest(c, "Invalid limit parameter")
		}

		opts.Limit = limit
	}

	sequences, err := h.repo.ListSequences(c.Context(), opts)
	if err != nil {
		return internalError(c, err)
	}

	responses := make([]SequenceResponse, 0, len(sequences))
	for _, seq := range sequences {
		responses = append(responses, TransformSequenceResponse(seq))
	}

	return c.JSON(fiber.Map{
		"sequences":   responses,
		"total_count": len(responses),
	})
}

func (h *APIHandlers) GetCampaigns(c fiber.Ctx) error {
	definitions := h.registry.Definitions()

	responses := make([]CampaignResponse, 0, len(definitions))
	for _, definition := range definitions {
		responses = append(responses, TransformCampaignResponse(definition))
	}

	return c.JSON(fiber.Map{
		"campaigns":   responses,
		"total_count": len(responses),
	})
}

func (h *APIHandlers) GetCampaign(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Campaign ID is required")
	}

	definition, err := h.registry.Definition(id)
	if err != nil {
		return notFound(c, "Campaign not found")
	}

	return c.JSON(TransformCampaignResponse(definition))
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storageErr := error(nil)
	if h.storageHealth != nil {
		storageErr = h.storageHealth(c.Context())
	}

	status := "healthy"
	httpStatus := http.StatusOK

	if storageErr != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	checkers := fiber.Map{
		"campaigns": len(h.registry.Definitions()),
	}
	if storageErr != nil {
		checkers["storage"] = storageErr.Error()
	} else {
		checkers["storage"] = "ok"
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}
