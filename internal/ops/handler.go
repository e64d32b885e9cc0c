package ops

import (
	"errors"
	"net/http"

	"github.com/damoang/angple-store/internal/common"
	"github.com/damoang/angple-store/internal/scheduler"
	"github.com/damoang/angple-store/internal/service"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/damoang/angple-store/pkg/cache"
	"github.com/gin-gonic/gin"
)

var errCollectionNotFound = &common.NotFoundError{Resource: "collection"}

// Handler serves the admin endpoints
type Handler struct {
	store     *storage.Store
	reconcile service.ReconcileService
	sched     *scheduler.Scheduler
	cache     cache.Service
	backupDir string
}

// NewHandler creates a new Handler. sched and cache may be nil.
func NewHandler(store *storage.Store, reconcile service.ReconcileService, sched *scheduler.Scheduler, c cache.Service, backupDir string) *Handler {
	return &Handler{
		store:     store,
		reconcile: reconcile,
		sched:     sched,
		cache:     c,
		backupDir: backupDir,
	}
}

// Health handles GET /healthz
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "storage": "ok", "cache": "disabled"}

	if _, err := h.store.ListCollections(); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["storage"] = err.Error()
	}
	if h.cache != nil && h.cache.IsAvailable() {
		body["cache"] = "ok"
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			body["cache"] = "unavailable"
		}
	}
	c.JSON(status, body)
}

// ListCollections handles GET /admin/collections
func (h *Handler) ListCollections(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, stats)
}

// Backup handles POST /admin/collections/:name/backup
func (h *Handler) Backup(c *gin.Context) {
	name := c.Param("name")
	if err := h.requireCollection(name); err != nil {
		common.FromError(c, err)
		return
	}
	info, err := h.store.Backup(c.Request.Context(), name, h.backupDir)
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, info)
}

// Clear handles POST /admin/collections/:name/clear
func (h *Handler) Clear(c *gin.Context) {
	name := c.Param("name")
	if err := h.requireCollection(name); err != nil {
		common.FromError(c, err)
		return
	}
	if err := h.store.Clear(c.Request.Context(), name); err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, gin.H{"collection": name, "cleared": true})
}

// Check handles GET /admin/reconcile
func (h *Handler) Check(c *gin.Context) {
	violations, err := h.reconcile.Check(c.Request.Context())
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, gin.H{"violations": nonNil(violations), "repaired": false})
}

// Reconcile handles POST /admin/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	violations, err := h.reconcile.Reconcile(c.Request.Context())
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, gin.H{"violations": nonNil(violations), "repaired": true})
}

// Purge handles POST /admin/purge
func (h *Handler) Purge(c *gin.Context) {
	res, err := h.reconcile.PurgeDeleted(c.Request.Context())
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, res)
}

// Tasks handles GET /admin/tasks
func (h *Handler) Tasks(c *gin.Context) {
	if h.sched == nil {
		common.Success(c, []scheduler.TaskInfo{})
		return
	}
	common.Success(c, h.sched.Tasks())
}

// RunTask handles POST /admin/tasks/:name/run
func (h *Handler) RunTask(c *gin.Context) {
	if h.sched == nil {
		common.ErrorResponse(c, http.StatusNotFound, "scheduler is not running", nil)
		return
	}
	name := c.Param("name")
	err := h.sched.RunNow(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		common.ErrorResponse(c, http.StatusNotFound, "task not found", err)
	case err != nil:
		common.FromError(c, err)
	default:
		common.Success(c, gin.H{"task": name, "ran": true})
	}
}

func (h *Handler) requireCollection(name string) error {
	if !storage.ValidName(name) {
		return storage.ErrInvalidCollection
	}
	if !h.store.Exists(name) {
		return errCollectionNotFound
	}
	return nil
}

func nonNil(v []common.InvariantViolation) []common.InvariantViolation {
	if v == nil {
		return []common.InvariantViolation{}
	}
	return v
}
