package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/sequence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and persistence errors onto problem
// responses without exposing internals.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, sequence.ErrMissingRecipientID),
		errors.Is(err, sequence.ErrMissingCampaignID):
		return badRequest(c, err.Error())

	case errors.Is(err, campaign.ErrCampaignNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("campaign_not_found").
			WithDetail("campaign not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case persistence.IsSequenceNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("sequence_not_found").
			WithDetail("sequence not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	default:
		return internalError(c, err)
	}
}
