package routes

import (
	"context"
	"errors"

	rbac "github.com/bohemiyan/orgauthz"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	RBAC *rbac.RBACService
	DB   *gorm.DB
	// Employees defaults to a store over DB.
	Employees EmployeeStore
	Gatherer  prometheus.Gatherer
	Health    func(ctx context.Context) error
}

const (
	employeesTable = "employees"
	employeesRes   = "employees"
	listLimit      = 100
)

// neverSerialized are employee columns stripped from every response.
var neverSerialized = []string{"password_hash", "mfa_secret"}

func Setup(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if d.Health != nil {
			if err := d.Health(c.UserContext()); err != nil {
				return fiber.NewError(fiber.StatusServiceUnavailable, "unhealthy")
			}
		}
		return c.SendString("ok")
	})
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Mock auth middleware
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get("X-User-ID"); id != "" {
			c.Locals(rbac.UserIDLocal, id)
		}
		return c.Next()
	})

	if d.Employees == nil && d.DB != nil {
		d.Employees = NewGormEmployeeStore(d.DB)
	}
	h := &handlers{Deps: d}
	api := app.Group("/api/v1")

	api.Post("/permissions/check", h.checkPermission)
	api.Get("/permissions/max-level", h.maxLevel)

	// access to listed rows is decided per row
	api.Get("/employees", h.listEmployees)
	api.Get("/employees/:id", d.RBAC.RequirePermission("employees.view", d.RBAC.TargetFromParam("id")), h.getEmployee)

	admin := api.Group("/admin", d.RBAC.RequirePermission("rbac.manage.company", nil))
	admin.Post("/cache/invalidate/:id", h.invalidateUser)
	admin.Post("/cache/invalidate", h.invalidateAll)
	admin.Put("/field-sensitivities", h.updateFieldSensitivities)
}

type handlers struct {
	Deps
}

func currentUser(c *fiber.Ctx) (string, error) {
	id, ok := c.Locals(rbac.UserIDLocal).(string)
	if !ok || id == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

func (h *handlers) target(c *fiber.Ctx, targetID string) (rbac.CheckContext, error) {
	if targetID == "" {
		return rbac.CheckContext{}, nil
	}
	return h.RBAC.TargetContext(c.UserContext(), targetID)
}

type checkRequest struct {
	Permission   string `json:"permission"`
	TargetUserID string `json:"target_user_id"`
}

type checkResponse struct {
	Allowed            bool   `json:"allowed"`
	EffectiveScope     string `json:"effective_scope,omitempty"`
	EffectiveDataLevel string `json:"effective_data_level,omitempty"`
}

func (h *handlers) checkPermission(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req checkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	cctx, err := h.target(c, req.TargetUserID)
	if err != nil {
		return err
	}
	res, err := h.RBAC.CheckPermission(c.UserContext(), userID, req.Permission, cctx)
	if errors.Is(err, rbac.ErrMalformedPermission) {
		return fiber.NewError(fiber.StatusBadRequest, "malformed permission code")
	}
	if err != nil {
		return err
	}
	return c.JSON(checkResponse{
		Allowed:            res.Allowed,
		EffectiveScope:     string(res.EffectiveScope),
		EffectiveDataLevel: string(res.EffectiveDataLevel),
	})
}

func (h *handlers) maxLevel(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	resource, action := c.Query("resource"), c.Query("action", "view")
	if resource == "" {
		return fiber.NewError(fiber.StatusBadRequest, "resource is required")
	}
	cctx, err := h.target(c, c.Query("target_user_id"))
	if err != nil {
		return err
	}
	level, ok, err := h.RBAC.GetMaxDataLevel(c.UserContext(), userID, resource, action, cctx)
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(fiber.Map{"data_level": nil})
	}
	return c.JSON(fiber.Map{"data_level": level})
}

func (h *handlers) employees() (EmployeeStore, error) {
	if h.Employees == nil {
		return nil, fiber.NewError(fiber.StatusNotImplemented, "no employee store")
	}
	return h.Employees, nil
}

func (h *handlers) getEmployee(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	store, err := h.employees()
	if err != nil {
		return err
	}
	id := c.Params("id")
	row, ok, err := store.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "not found")
	}
	cctx, err := h.target(c, id)
	if err != nil {
		return err
	}
	masked, err := h.RBAC.MaskUserData(c.UserContext(), userID, employeesRes, row, cctx,
		rbac.MaskOptions{AlwaysShowFields: []string{"id"}, OmitFields: neverSerialized})
	if err != nil {
		return err
	}
	return c.JSON(masked)
}

func (h *handlers) listEmployees(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	store, err := h.employees()
	if err != nil {
		return err
	}
	rows, err := store.List(c.UserContext(), listLimit)
	if err != nil {
		return err
	}
	visible, err := h.RBAC.VisibleUsersData(c.UserContext(), userID, employeesRes, "id", rows,
		rbac.MaskOptions{AlwaysShowFields: []string{"id"}, OmitFields: neverSerialized})
	if err != nil {
		return err
	}
	return c.JSON(visible)
}

func (h *handlers) invalidateUser(c *fiber.Ctx) error {
	if err := h.RBAC.InvalidateUser(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) invalidateAll(c *fiber.Ctx) error {
	if err := h.RBAC.InvalidateAll(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) updateFieldSensitivities(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var configs []rbac.FieldSensitivity
	if err := c.BodyParser(&configs); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	err = h.RBAC.UpdateFieldSensitivities(c.UserContext(), userID, configs)
	if errors.Is(err, rbac.ErrInvalidInput) {
		msgs := make([]string, 0)
		for _, e := range multierr.Errors(err) {
			msgs = append(msgs, e.Error())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
