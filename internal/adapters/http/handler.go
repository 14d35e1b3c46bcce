package http

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// Executor runs a deployment to completion, filling in its report.
type Executor interface {
	Execute(ctx context.Context, report *domain.RunReport)
}

// DeploymentHandler exposes deployment runs over HTTP. Only one run is in
// flight at a time; finished reports are kept in memory.
type DeploymentHandler struct {
	executor   Executor
	containers ports.ContainerService
	base       domain.DeploymentRequest
	newReport  func(domain.DeploymentRequest) *domain.RunReport
	timeout    time.Duration
	logger     log.Logger

	mu      sync.Mutex
	active  bool
	reports map[string]domain.RunReport
	latest  string
	wg      sync.WaitGroup
}

// NewDeploymentHandler returns a handler running base, with per-request
// overrides, through executor. A positive timeout bounds every run.
func NewDeploymentHandler(executor Executor, containers ports.ContainerService, base domain.DeploymentRequest,
	newReport func(domain.DeploymentRequest) *domain.RunReport, timeout time.Duration, logger log.Logger) *DeploymentHandler {
	return &DeploymentHandler{
		executor:   executor,
		containers: containers,
		base:       base,
		newReport:  newReport,
		timeout:    timeout,
		logger:     logger,
		reports:    map[string]domain.RunReport{},
	}
}

// Register mounts the handler's routes under router.
func (h *DeploymentHandler) Register(router fiber.Router) {
	deployments := router.Group("/deployments")
	deployments.Post("/", h.StartDeployment)
	deployments.Get("/latest", h.LatestDeployment)
	deployments.Get("/:id", h.GetDeployment)

	router.Get("/apps/:name/containers", h.ListAppContainers)
}

type StartDeploymentRequest struct {
	Branch   string `json:"branch"`
	Image    string `json:"image"`
	ImageTag string `json:"image_tag"`
}

func (h *DeploymentHandler) StartDeployment(c *fiber.Ctx) error {
	var body StartDeploymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	req := h.base
	if body.Branch != "" {
		req.Branch = body.Branch
	}
	if body.Image != "" {
		req.Image = body.Image
		req.RepoURL = ""
	}
	if body.ImageTag != "" {
		req.ImageTag = body.ImageTag
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.mu.Lock()
	if h.active {
		h.mu.Unlock()
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A deployment is already running",
		})
	}
	report := h.newReport(req)
	accepted := *report
	h.active = true
	h.reports[accepted.ID] = accepted
	h.latest = accepted.ID
	h.mu.Unlock()

	level.Info(h.logger).Log("msg", "deployment accepted", "run", accepted.ID, "app", req.AppName)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		// the request context is recycled by fiber once the handler returns
		ctx := context.Background()
		if h.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.timeout)
			defer cancel()
		}
		h.executor.Execute(ctx, report)

		h.mu.Lock()
		h.reports[report.ID] = *report
		h.active = false
		h.mu.Unlock()
	}()

	// report belongs to the run from here on
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     accepted.ID,
		"status": accepted.Status,
	})
}

func (h *DeploymentHandler) GetDeployment(c *fiber.Ctx) error {
	return h.sendReport(c, c.Params("id"))
}

func (h *DeploymentHandler) LatestDeployment(c *fiber.Ctx) error {
	h.mu.Lock()
	id := h.latest
	h.mu.Unlock()
	return h.sendReport(c, id)
}

func (h *DeploymentHandler) sendReport(c *fiber.Ctx, id string) error {
	h.mu.Lock()
	report, ok := h.reports[id]
	h.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Deployment not found",
		})
	}
	return c.JSON(report)
}

// ListAppContainers lists an app's running containers, or all of them with
// ?all=1.
func (h *DeploymentHandler) ListAppContainers(c *fiber.Ctx) error {
	list := h.containers.RunningContainers
	if c.QueryBool("all") {
		list = h.containers.ListContainers
	}
	containers, err := list(c.Context(), c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(containers)
}

// Wait blocks until the in-flight run, if any, has finished.
func (h *DeploymentHandler) Wait() {
	h.wg.Wait()
}
