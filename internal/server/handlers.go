package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type handler struct {
	svc Service
}

type analyzeRequest struct {
	Project     string `json:"project"`
	IssueNumber int    `json:"issue_number"`
	Force       bool   `json:"force"`
}

type batchRequest struct {
	Project      string `json:"project"`
	IssueNumbers []int  `json:"issue_numbers"`
}

type respondRequest struct {
	Project     string `json:"project"`
	IssueNumber int    `json:"issue_number"`
	Index       int    `json:"index"`
}

func successResponse(message string, data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	}
}

func (h *handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

func (h *handler) analyze(c *fiber.Ctx) error {
	var req analyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	res, err := h.svc.Analyze(c.UserContext(), req.Project, req.IssueNumber, req.Force)
	if err != nil {
		return err
	}
	return c.JSON(successResponse("Issue analyzed", res))
}

func (h *handler) startBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id, err := h.svc.StartBatch(req.Project, req.IssueNumbers)
	if err != nil {
		return err
	}
	// Repeated numbers are dropped, so the tracked total is authoritative
	total := len(req.IssueNumbers)
	if s, ok := h.svc.BatchStatus(id); ok {
		total = s.Total
	}
	return c.Status(fiber.StatusAccepted).JSON(successResponse("Batch started", fiber.Map{
		"batch_id": id,
		"total":    total,
	}))
}

func (h *handler) batchStatus(c *fiber.Ctx) error {
	status, ok := h.svc.BatchStatus(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "batch not found")
	}
	return c.JSON(successResponse("Batch status", status))
}

func (h *handler) cancelBatch(c *fiber.Ctx) error {
	status, ok := h.svc.CancelBatch(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "batch not found")
	}
	return c.Status(fiber.StatusAccepted).JSON(successResponse("Batch cancel requested", status))
}

func (h *handler) stats(c *fiber.Ctx) error {
	stats, err := h.svc.CategoryStats(c.UserContext(), c.Query("project"))
	if err != nil {
		return err
	}
	return c.JSON(successResponse("Category stats", stats))
}

func (h *handler) search(c *fiber.Ctx) error {
	minSimilarity, err := strconv.ParseFloat(c.Query("min_similarity", "0"), 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "min_similarity must be a number")
	}

	results, err := h.svc.SemanticSearch(c.UserContext(), c.Query("project"), c.Query("q"), c.QueryInt("k", 0), minSimilarity)
	if err != nil {
		return err
	}
	return c.JSON(successResponse("Search results", results))
}

func (h *handler) history(c *fiber.Ctx) error {
	history, err := h.svc.History(c.UserContext(), c.Query("project"), c.QueryInt("issue_number", 0))
	if err != nil {
		return err
	}
	return c.JSON(successResponse("Analysis history", history))
}

func (h *handler) respond(c *fiber.Ctx) error {
	var req respondRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	res, err := h.svc.Respond(c.UserContext(), req.Project, req.IssueNumber, req.Index)
	if err != nil {
		return err
	}
	return c.JSON(successResponse("Response applied", res))
}
