package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/friden-zhang/raspi-todo/domain"
	"github.com/friden-zhang/raspi-todo/realtime"
	"github.com/friden-zhang/raspi-todo/storage"
)

const maxBodySize = 1 << 20

// Register wires up all REST routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, notifier Notifier, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handlers{store: store, notifier: notifier, logger: logger}

	e.GET("/api/health", h.health)
	e.GET("/api/todos", h.listTodos)
	e.POST("/api/todos", h.createTodo)
	e.GET("/api/todos/:id", h.getTodo)
	e.PUT("/api/todos/:id", h.updateTodo)
	e.PATCH("/api/todos/:id/status", h.updateStatus)
	e.POST("/api/todos/reorder", h.reorder)
	e.DELETE("/api/todos/:id", h.deleteTodo)
	e.GET("/api/categories", h.listCategories)
	e.POST("/api/categories", h.createCategory)
	e.GET("/api/categories/:id", h.getCategory)
	e.PUT("/api/categories/:id", h.updateCategory)
	e.DELETE("/api/categories/:id", h.deleteCategory)
}

type handlers struct {
	store    Store
	notifier Notifier
	logger   *log.Logger
}

type healthResponse struct {
	OK bool   `json:"ok"`
	DB string `json:"db"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (h *handlers) health(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		h.logger.WithError(err).Error("health check")
		return c.JSON(http.StatusInternalServerError, healthResponse{OK: false, DB: "down"})
	}
	return c.JSON(http.StatusOK, healthResponse{OK: true, DB: "ok"})
}

func (h *handlers) listTodos(c echo.Context) (err error) {
	metrics := newListRequestMetrics(h.logger)
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	filter := storage.TodoFilter{}
	if status := c.QueryParam("status"); status != "" {
		filter.Status = &status
		metrics.SetStatusFilter(status)
	}
	if v := c.QueryParam("include_deleted"); v != "" {
		include, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			metrics.SetErrorStage("invalid_include_deleted")
			err = c.String(http.StatusBadRequest, "invalid include_deleted")
			return err
		}
		filter.IncludeDeleted = include
	}

	fetchStart := time.Now()
	todos, fetchErr := h.store.ListTodos(c.Request().Context(), filter)
	metrics.ObserveFetch(time.Since(fetchStart))
	if fetchErr != nil {
		metrics.SetErrorStage("storage")
		err = h.fail(c, fetchErr)
		return err
	}
	metrics.SetTodosReturned(len(todos))

	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, todos)
	metrics.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		metrics.SetErrorStage("encode_response")
	}
	return err
}

func (h *handlers) createTodo(c echo.Context) error {
	var req domain.TodoCreate
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := req.Validate(); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	todo := domain.NewTodo(req)
	if err := h.store.CreateTodo(c.Request().Context(), todo); err != nil {
		return h.fail(c, err)
	}
	h.broadcast(c, realtime.EventTodoCreated, todo)
	return c.JSON(http.StatusOK, todo)
}

func (h *handlers) getTodo(c echo.Context) error {
	todo, err := h.store.GetTodo(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, todo)
}

func (h *handlers) updateTodo(c echo.Context) error {
	var req domain.TodoUpdate
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := req.Validate(); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	todo, err := h.store.GetTodo(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	todo.Apply(req)
	if err := h.store.SaveTodo(ctx, todo); err != nil {
		return h.fail(c, err)
	}
	h.broadcast(c, realtime.EventTodoUpdated, todo)
	return c.JSON(http.StatusOK, todo)
}

func (h *handlers) updateStatus(c echo.Context) error {
	status := c.QueryParam("status")
	if status == "" {
		return c.String(http.StatusBadRequest, "missing status")
	}
	if !domain.ValidStatus(status) {
		return c.String(http.StatusBadRequest, "invalid status")
	}

	ctx := c.Request().Context()
	todo, err := h.store.GetTodo(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	todo.Apply(domain.TodoUpdate{Status: &status})
	if err := h.store.SaveTodo(ctx, todo); err != nil {
		return h.fail(c, err)
	}
	h.broadcast(c, realtime.EventTodoUpdated, todo)
	return c.JSON(http.StatusOK, todo)
}

func (h *handlers) reorder(c echo.Context) error {
	var items []domain.ReorderItem
	if err := decodeBody(c, &items); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := h.store.ReorderTodos(c.Request().Context(), items); err != nil {
		return h.fail(c, err)
	}
	h.broadcast(c, realtime.EventTodosReordered, items)
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

func (h *handlers) deleteTodo(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.SoftDeleteTodo(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	h.broadcast(c, realtime.EventTodoDeleted, map[string]string{"id": id})
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

func (h *handlers) listCategories(c echo.Context) error {
	cats, err := h.store.ListCategories(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *handlers) createCategory(c echo.Context) error {
	var req domain.CategoryCreate
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := req.Validate(); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	cat := domain.NewCategory(req)
	if err := h.store.CreateCategory(c.Request().Context(), cat); err != nil {
		return h.fail(c, err)
	}
	h.broadcast(c, realtime.EventCategoryCreated, cat)
	return c.JSON(http.StatusOK, cat)
}

func (h *handlers) getCategory(c echo.Context) error {
	cat, err := h.store.GetCategory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *handlers) updateCategory(c echo.Context) error {
	var req domain.CategoryUpdate
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := req.Validate(); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	cat, err := h.store.GetCategory(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	cat.Apply(req)
	if err := h.store.SaveCategory(ctx, cat); err != nil {
		return h.fail(c, err)
	}
	h.broadcast(c, realtime.EventCategoryUpdated, cat)
	return c.JSON(http.StatusOK, cat)
}

func (h *handlers) deleteCategory(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.SoftDeleteCategory(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	h.broadcast(c, realtime.EventCategoryDeleted, map[string]string{"id": id})
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

// broadcast emits one event for a durably applied mutation. The client that
// caused it may tag the request with X-Request-ID; the id travels as the
// event origin so that client can drop its own echo.
func (h *handlers) broadcast(c echo.Context, typ string, data any) {
	origin := c.Request().Header.Get(echo.HeaderXRequestID)
	ev, err := realtime.NewEvent(typ, data, origin)
	if err != nil {
		h.logger.WithError(err).WithField("type", typ).Error("build event")
		return
	}
	h.notifier.Broadcast(ev)
}

func (h *handlers) fail(c echo.Context, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return c.String(http.StatusNotFound, "not found")
	}
	h.logger.WithError(err).Error("storage error")
	return c.String(http.StatusInternalServerError, "internal error")
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
