package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/0rca-network/conductor/pkg/orchestrator"
	"github.com/0rca-network/conductor/pkg/planner"
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

// handleServiceError maps orchestrator error classes to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case orchestrator.IsNotFound(err):
		return notFound(c, err.Error())

	case orchestrator.IsStateViolation(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("state_violation").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, planner.ErrNoActiveAgents):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("no_active_agents").
			WithDetail(err.Error())

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	case orchestrator.IsPlanningFailure(err):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("planning_failed").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	case orchestrator.IsTransportFailure(err):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("agent_unreachable").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	case orchestrator.IsContractViolation(err):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("agent_contract_violation").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	default:
		return internalError(c, err)
	}
}
