package web

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/hariharan888/faith-admin/internal/config"
	"github.com/hariharan888/faith-admin/internal/ics"
	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/materialize"
	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/store"
)

const (
	calendarCacheTTL = 30 * time.Second
	bodyLimit        = 6 << 20
)

// Server exposes the admin API and the public calendar feed.
type Server struct {
	cfg      *config.Config
	store    store.Store
	mat      *materialize.Materializer
	fetcher  *ics.Fetcher
	validate *validator.Validate
	app      *fiber.App

	// /calendar.ics is cached briefly and dropped on every write.
	calMu    sync.RWMutex
	calCache *calendarCache
}

type calendarCache struct {
	body      string
	updatedAt time.Time
}

// NewServer wires the routes. A nil fetcher gets a default one.
func NewServer(cfg *config.Config, st store.Store, mat *materialize.Materializer, fetcher *ics.Fetcher) *Server {
	if fetcher == nil {
		fetcher = ics.NewFetcher(nil)
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		mat:      mat,
		fetcher:  fetcher,
		validate: validator.New(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "faith-admin",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
	})
	s.registerRoutes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on cfg.Listen until Shutdown.
func (s *Server) Listen() error {
	appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "auth", s.authMode())
	return s.app.Listen(s.cfg.Listen)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "${method} ${path} ${status} ${latency}\n",
		Output: requestLog{},
	}))

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/calendar.ics", s.handleCalendar)

	admin := s.app.Group("/admin", s.authMiddleware())

	rec := admin.Group("/recurring_events")
	rec.Get("/", s.handleListRecurring)
	rec.Post("/", s.handleCreateRecurring)
	rec.Post("/import", s.handleImport)
	rec.Delete("/bulk_destroy", s.handleBulkDestroyRecurring)
	rec.Get("/:id", s.handleGetRecurring)
	rec.Patch("/:id", s.handleUpdateRecurring)
	rec.Put("/:id", s.handleUpdateRecurring)
	rec.Delete("/:id", s.handleDeleteRecurring)
	rec.Post("/:id/generate_events", s.handleGenerate)

	admin.Post("/recurrence/preview", s.handlePreview)

	ev := admin.Group("/events")
	ev.Get("/", s.handleListEvents)
	ev.Post("/", s.handleCreateEvent)
	ev.Delete("/bulk_destroy", s.handleBulkDestroyEvents)
	ev.Get("/:id", s.handleGetEvent)
	ev.Patch("/:id", s.handleUpdateEvent)
	ev.Put("/:id", s.handleUpdateEvent)
	ev.Delete("/:id", s.handleDeleteEvent)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// handleCalendar serves every active series and standalone event as an
// iCalendar feed.
func (s *Server) handleCalendar(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")

	s.calMu.RLock()
	cc := s.calCache
	s.calMu.RUnlock()
	if cc != nil && time.Since(cc.updatedAt) < calendarCacheTTL {
		return c.SendString(cc.body)
	}

	ctx := c.UserContext()
	series, err := collect(ctx, store.ListOptions{Status: string(model.SeriesActive)}, s.store.ListRecurringEvents)
	if err != nil {
		return storeError(err)
	}
	events, err := collect(ctx, store.ListOptions{}, s.store.ListEvents)
	if err != nil {
		return storeError(err)
	}

	res := ics.ExportCalendar(series, events, ics.ExportOptions{
		ProductID: s.cfg.Calendar.ProductID,
		Name:      s.cfg.Calendar.Name,
		Location:  s.mat.Location(),
		Now:       s.mat.Now(),
	})
	if len(res.Skipped) > 0 {
		appLog.Warn("calendar export skipped series", "ids", strings.Join(res.Skipped, ","))
	}

	s.calMu.Lock()
	s.calCache = &calendarCache{body: res.Body, updatedAt: time.Now()}
	s.calMu.Unlock()

	return c.SendString(res.Body)
}

func (s *Server) invalidateCalendar() {
	s.calMu.Lock()
	s.calCache = nil
	s.calMu.Unlock()
}

// collect pages through list until every item is read.
func collect[T any](ctx context.Context, opts store.ListOptions, list func(context.Context, store.ListOptions) (store.Page[T], error)) ([]T, error) {
	opts.PerPage = store.MaxPerPage
	var out []T
	for page := 1; ; page++ {
		opts.Page = page
		p, err := list(ctx, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
		if page >= p.TotalPages() || len(p.Items) == 0 {
			return out, nil
		}
	}
}

// listOptions reads the paging and filter query parameters shared by the
// list endpoints.
func listOptions(c *fiber.Ctx) store.ListOptions {
	return store.ListOptions{
		Page:     parseIntDefault(c.Query("page"), 1),
		PerPage:  parseIntDefault(c.Query("per_page"), store.DefaultPerPage),
		Status:   c.Query("status"),
		Search:   c.Query("search", c.Query("q")),
		Upcoming: c.QueryBool("upcoming", false),
	}.Normalize()
}

type pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

func paginationOf[T any](p store.Page[T]) pagination {
	return pagination{Page: p.Page, PerPage: p.PerPage, TotalPages: p.TotalPages()}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// errorHandler renders every error as {"error": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		appLog.Error("request failed", err, "method", c.Method(), "path", c.Path())
	}
	return writeError(c, code, err.Error())
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// storeError maps store sentinels to HTTP errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "not found")
	case errors.Is(err, store.ErrAlreadyExists):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return err
}

// requestLog routes fiber's access log lines into the app log.
type requestLog struct{}

func (requestLog) Write(p []byte) (int, error) {
	appLog.Info("http request", "req", strings.TrimSpace(string(p)))
	return len(p), nil
}
