package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-preview/internal/config"
	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/core/services"
)

type PreviewHandler struct {
	service  Previewer
	defaults *config.Config
	logger   *logrus.Logger
}

func NewPreviewHandler(service Previewer, defaults *config.Config, logger *logrus.Logger) *PreviewHandler {
	if defaults == nil {
		defaults = config.Default()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PreviewHandler{service: service, defaults: defaults, logger: logger}
}

// errorResponse maps domain errors onto HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := fiber.Map{"error": err.Error()}

	var buildErr *domain.BuildError
	var runtimeErr *domain.RuntimeError
	switch {
	case errors.Is(err, domain.ErrInvalidSpec):
		status = fiber.StatusBadRequest
	case errors.As(err, &buildErr):
		status = fiber.StatusUnprocessableEntity
		body["step"] = buildErr.Step
		if buildErr.Detail != "" {
			body["detail"] = buildErr.Detail
		}
	case errors.As(err, &runtimeErr):
		if runtimeErr.Op == "resolve" {
			status = fiber.StatusNotFound
		}
		if runtimeErr.ExitCode != 0 {
			body["exit_code"] = runtimeErr.ExitCode
		}
	}
	return c.Status(status).JSON(body)
}

func (h *PreviewHandler) ListPreviews(c *fiber.Ctx) error {
	previews, err := h.service.List(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(previews)
}

// BuildRequest may override the image but never the project source: API
// clients only ever build the configured project, optionally at another ref.
type BuildRequest struct {
	Tag     string            `json:"tag"`
	NoCache bool              `json:"no_cache"`
	Spec    *domain.ImageSpec `json:"spec"`
	Ref     string            `json:"ref"`
	Port    int               `json:"port"`
}

// BuildPreview builds the configured project, falling back to the configured
// spec for anything omitted.
// Note: This is a blocking operation and might take minutes.
func (h *PreviewHandler) BuildPreview(c *fiber.Ctx) error {
	var req BuildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	spec := h.defaults.ImageSpec()
	if req.Spec != nil {
		spec = *req.Spec
	}
	mount := h.defaults.ProjectMount()
	if req.Ref != "" {
		mount.Ref = req.Ref
	}
	opts := services.BuildOptions{
		Tag:     h.defaults.Image.Tag,
		NoCache: req.NoCache,
		Binding: h.defaults.Binding(),
	}
	if req.Tag != "" {
		opts.Tag = req.Tag
	}
	if req.Port != 0 {
		opts.Binding.Port = req.Port
	}

	artifact, err := h.service.Build(c.Context(), spec, mount, opts)
	if err != nil {
		return errorResponse(c, err)
	}
	status := fiber.StatusCreated
	if artifact.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(artifact)
}

type StartPreviewRequest struct {
	Tag      string   `json:"tag"`
	Name     string   `json:"name"`
	Env      []string `json:"env"`
	HostPort int      `json:"host_port"`
}

func (h *PreviewHandler) StartPreview(c *fiber.Ctx) error {
	var req StartPreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Tag == "" {
		req.Tag = h.defaults.Image.Tag
	}
	env, err := domain.ParseEnv(append(append([]string(nil), h.defaults.Env...), req.Env...))
	if err != nil {
		return errorResponse(c, err)
	}

	artifact, err := h.service.Artifact(c.Context(), req.Tag)
	if err != nil {
		return errorResponse(c, err)
	}
	binding := h.defaults.Binding()
	if artifact.Port != 0 {
		binding.Port = artifact.Port
	}
	if req.HostPort != 0 {
		binding.HostPort = req.HostPort
	}

	proc, err := h.service.Run(c.Context(), artifact, binding, services.RunOptions{Name: req.Name, Env: env})
	if err != nil {
		return errorResponse(c, err)
	}
	h.logger.WithFields(logrus.Fields{
		"container_id": proc.ContainerID,
		"tag":          req.Tag,
	}).Info("Preview started via API")
	return c.Status(fiber.StatusCreated).JSON(proc)
}

func (h *PreviewHandler) StopPreview(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Preview ID is required",
		})
	}

	if err := h.service.Stop(c.Context(), id); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *PreviewHandler) GetPreviewLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Preview ID is required",
		})
	}

	logs, err := h.service.Logs(c.Context(), id, false)
	if err != nil {
		return errorResponse(c, err)
	}
	// SendStream closes the reader once the body has been written.
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendStream(logs)
}
