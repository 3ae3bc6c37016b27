package handler

import (
	"errors"
	"strconv"
	"strings"

	"go-pricebook-sync/internal/middleware"
	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/service"
	"go-pricebook-sync/internal/upstream"
	"go-pricebook-sync/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type SyncHandler struct {
	sync      service.SyncService
	pricebook service.PricebookService
	scheduler *service.Scheduler
}

func NewSyncHandler(sync service.SyncService, pricebook service.PricebookService, scheduler *service.Scheduler) *SyncHandler {
	return &SyncHandler{sync: sync, pricebook: pricebook, scheduler: scheduler}
}

// Routes mounts the sync surface on r. r must already run RequireAuth.
func (h *SyncHandler) Routes(r fiber.Router) {
	sync := r.Group("/sync/pricebook")
	sync.Post("/full", middleware.RequirePrivilege(model.PrivSyncTrigger), h.FullSync)
	sync.Post("/incremental", middleware.RequirePrivilege(model.PrivSyncTrigger), h.IncrementalSync)
	sync.Get("/status", middleware.RequirePrivilege(model.PrivSyncView), h.GetStatus)
	sync.Get("/conflicts", middleware.RequirePrivilege(model.PrivSyncView), h.GetConflicts)
	sync.Post("/resolve-conflict/:id", middleware.RequirePrivilege(model.PrivSyncResolve), h.ResolveConflict)
	sync.Get("/logs", middleware.RequirePrivilege(model.PrivSyncView), h.GetLogs)
	sync.Get("/logs/:id", middleware.RequirePrivilege(model.PrivSyncView), h.GetLog)
	sync.Post("/scheduler/start", middleware.RequirePrivilege(model.PrivSchedulerControl), h.StartScheduler)
	sync.Post("/scheduler/stop", middleware.RequirePrivilege(model.PrivSchedulerControl), h.StopScheduler)

	items := r.Group("/pricebook")
	items.Get("/:kind", middleware.RequirePrivilege(model.PrivSyncView), h.ListItems)
	items.Get("/:kind/:id", middleware.RequirePrivilege(model.PrivSyncView), h.GetItem)
	items.Post("/:kind/:id/refresh", middleware.RequirePrivilege(model.PrivSyncTrigger), h.RefreshItem)
	items.Patch("/:kind/:id", middleware.RequirePrivilege(model.PrivPricebookUpdate), h.EditItem)
	items.Get("/:kind/:id/history", middleware.RequirePrivilege(model.PrivSyncView), h.GetHistory)
}

type syncRequest struct {
	ResolveConflicts string   `json:"resolveConflicts" validate:"omitempty,oneof=keep_upstream keep_local manual"`
	EntityTypes      []string `json:"entityTypes" validate:"omitempty,dive,required"`
	DryRun           bool     `json:"dryRun"`
	Direction        string   `json:"direction" validate:"omitempty,oneof=from_upstream to_upstream bidirectional"`
	CategoryID       *int64   `json:"categoryId" validate:"omitempty,gt=0"`
}

type resolveRequest struct {
	Strategy   string `json:"strategy" validate:"required,oneof=keep_upstream keep_local manual"`
	ResolvedBy string `json:"resolvedBy" validate:"max=100"`
}

func getUserName(c *fiber.Ctx) string {
	return middleware.UserName(c, "Unknown")
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrSyncInProgress),
		errors.Is(err, service.ErrConflictAlreadyResolved):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrConflictNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, upstream.ErrNotFound),
		errors.Is(err, service.ErrRunNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrUnknownEntityType),
		errors.Is(err, service.ErrInvalidStrategy),
		errors.Is(err, service.ErrInvalidDirection),
		errors.Is(err, service.ErrInvalidEdit),
		errors.Is(err, service.ErrEmptyEdit):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "Internal Server Error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func (h *SyncHandler) FullSync(c *fiber.Ctx) error {
	return h.runSync(c, model.RunTypeFull)
}

func (h *SyncHandler) IncrementalSync(c *fiber.Ctx) error {
	return h.runSync(c, model.RunTypeIncremental)
}

func (h *SyncHandler) runSync(c *fiber.Ctx, runType model.RunType) error {
	var req syncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
		}
	}
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Validation failed", "details": errs})
	}

	opts := service.SyncOptions{
		Type:        runType,
		Direction:   model.SyncDirection(req.Direction),
		Strategy:    model.ResolutionStrategy(req.ResolveConflicts),
		DryRun:      req.DryRun,
		TriggeredBy: model.TriggerAPI + ":" + getUserName(c),
		ResolvedBy:  getUserName(c),
		CategoryID:  req.CategoryID,
	}
	for _, name := range req.EntityTypes {
		kind, err := model.ParseEntityType(name)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		opts.EntityTypes = append(opts.EntityTypes, kind)
	}

	result, err := h.sync.Run(c.UserContext(), opts)
	if err != nil {
		return fail(c, err)
	}

	message := "Sync " + string(result.Status)
	return c.JSON(fiber.Map{"message": message, "data": result})
}

func (h *SyncHandler) GetStatus(c *fiber.Ctx) error {
	report, err := h.pricebook.Status(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(report)
}

func (h *SyncHandler) GetConflicts(c *fiber.Ctx) error {
	var kind model.EntityType
	if raw := c.Query("entityType"); raw != "" {
		k, err := model.ParseEntityType(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		kind = k
	}

	conflicts, err := h.pricebook.ListConflicts(c.UserContext(), kind)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"data": conflicts, "total": len(conflicts)})
}

func (h *SyncHandler) ResolveConflict(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid conflict ID"})
	}

	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Validation failed", "details": errs})
	}
	resolvedBy := strings.TrimSpace(req.ResolvedBy)
	if resolvedBy == "" {
		resolvedBy = getUserName(c)
	}

	conflict, err := h.pricebook.ResolveConflict(c.UserContext(), id, model.ResolutionStrategy(req.Strategy), resolvedBy)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Conflict updated", "data": conflict})
}

func (h *SyncHandler) GetLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	runs, err := h.pricebook.ListRuns(c.UserContext(), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"data": runs})
}

func (h *SyncHandler) GetLog(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid run ID"})
	}
	run, err := h.pricebook.GetRun(c.UserContext(), id, c.QueryBool("changes", false))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(run)
}

func (h *SyncHandler) StartScheduler(c *fiber.Ctx) error {
	if err := h.scheduler.Start(); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Scheduler started", "data": h.scheduler.Status()})
}

func (h *SyncHandler) StopScheduler(c *fiber.Ctx) error {
	h.scheduler.Stop()
	return c.JSON(fiber.Map{"message": "Scheduler stopped", "data": h.scheduler.Status()})
}

func (h *SyncHandler) ListItems(c *fiber.Ctx) error {
	kind, err := model.ParseEntityType(c.Params("kind"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	q := service.ItemQuery{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", service.DefaultItemPageSize),
	}
	if raw := c.Query("categoryId"); raw != "" {
		categoryID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || categoryID <= 0 {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid category ID"})
		}
		q.CategoryID = &categoryID
	}

	page, err := h.pricebook.ListItems(c.UserContext(), kind, q)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"data": page.Items, "total": page.Total, "page": page.Page, "pageSize": page.PageSize})
}

func (h *SyncHandler) GetItem(c *fiber.Ctx) error {
	kind, id, err := itemParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	item, _, err := h.pricebook.GetItem(c.UserContext(), kind, id, false)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"data": item})
}

// RefreshItem pulls one item from upstream before returning it.
func (h *SyncHandler) RefreshItem(c *fiber.Ctx) error {
	kind, id, err := itemParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	item, report, err := h.pricebook.GetItem(c.UserContext(), kind, id, true)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Item refreshed", "data": item, "refresh": report})
}

func (h *SyncHandler) EditItem(c *fiber.Ctx) error {
	kind, id, err := itemParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	var edit service.LocalEdit
	if err := c.BodyParser(&edit); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	item, err := h.pricebook.EditItem(c.UserContext(), kind, id, edit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Item updated", "data": item})
}

func (h *SyncHandler) GetHistory(c *fiber.Ctx) error {
	kind, id, err := itemParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	history, err := h.pricebook.History(c.UserContext(), kind, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"data": history})
}

func itemParams(c *fiber.Ctx) (model.EntityType, uuid.UUID, error) {
	kind, err := model.ParseEntityType(c.Params("kind"))
	if err != nil {
		return "", uuid.Nil, err
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return "", uuid.Nil, errors.New("invalid item ID")
	}
	return kind, id, nil
}
