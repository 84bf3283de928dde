package web

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/hariharan888/faith-admin/internal/ics"
	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/materialize"
	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
)

// seriesView is a series as rendered by the API, with its rule described in
// words for list views.
type seriesView struct {
	model.RecurringEvent
	RuleText string `json:"rrule_text"`
}

func viewOf(r model.RecurringEvent) seriesView {
	return seriesView{RecurringEvent: r, RuleText: recurrence.HumanizeText(r.Rule)}
}

func (s *Server) handleListRecurring(c *fiber.Ctx) error {
	opts := listOptions(c)
	opts.Upcoming = false
	p, err := s.store.ListRecurringEvents(c.UserContext(), opts)
	if err != nil {
		return storeError(err)
	}
	items := make([]seriesView, 0, len(p.Items))
	for _, r := range p.Items {
		items = append(items, viewOf(r))
	}
	return c.JSON(fiber.Map{
		"recurring_events": items,
		"total_count":      p.TotalCount,
		"pagination":       paginationOf(p),
	})
}

func (s *Server) handleGetRecurring(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := s.store.GetRecurringEvent(c.UserContext(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(fiber.Map{"recurring_event": viewOf(r)})
}

func (s *Server) handleCreateRecurring(c *fiber.Ctx) error {
	var in recurringInput
	if err := s.decodeBody(c, "recurring_event", &in); err != nil {
		return err
	}
	var r model.RecurringEvent
	if err := in.apply(&r, s.mat.Location(), true); err != nil {
		return err
	}
	if err := s.store.CreateRecurringEvent(c.UserContext(), &r); err != nil {
		return storeError(err)
	}
	s.invalidateCalendar()
	appLog.Info("recurring event created", "id", r.ID, "rule", r.Rule, "actor", actor(c))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"recurring_event": viewOf(r)})
}

// handleUpdateRecurring edits a series. Events already generated from it are
// left as they are.
func (s *Server) handleUpdateRecurring(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in recurringInput
	if err := s.decodeBody(c, "recurring_event", &in); err != nil {
		return err
	}
	ctx := c.UserContext()
	r, err := s.store.GetRecurringEvent(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if err := in.apply(&r, s.mat.Location(), false); err != nil {
		return err
	}
	if err := s.store.UpdateRecurringEvent(ctx, &r); err != nil {
		return storeError(err)
	}
	s.invalidateCalendar()
	return c.JSON(fiber.Map{"recurring_event": viewOf(r)})
}

func (s *Server) handleDeleteRecurring(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	n, err := s.store.DeleteRecurringEvents(c.UserContext(), id)
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return fiber.NewError(fiber.StatusNotFound, "not found")
	}
	s.invalidateCalendar()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleBulkDestroyRecurring(c *fiber.Ctx) error {
	var in idsRequest
	if err := s.decodeBody(c, "recurring_event", &in); err != nil {
		return err
	}
	n, err := s.store.DeleteRecurringEvents(c.UserContext(), in.IDs...)
	if err != nil {
		return storeError(err)
	}
	s.invalidateCalendar()
	appLog.Info("recurring events deleted", "requested", len(in.IDs), "deleted", n, "actor", actor(c))
	return c.JSON(fiber.Map{"deleted": n})
}

// handleGenerate materializes one series from today through ?horizon
// (YYYY-MM-DD, default now plus the configured months).
//
//   - 200 {count}: events created, zero when already up to date
//   - 409: the series is paused or cancelled
//   - 422: the stored rule does not parse
//   - 422 {count, error}: more occurrences than the cap; count events were kept
//   - 502 {count, error}: a create failed; count events were kept
func (s *Server) handleGenerate(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	horizon := s.mat.DefaultHorizon()
	if raw := c.Query("horizon"); raw != "" {
		d, err := recurrence.ParseDate(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "horizon must be YYYY-MM-DD")
		}
		horizon = d.In(s.mat.Location())
	}

	series, err := s.store.GetRecurringEvent(ctx, id)
	if err != nil {
		return storeError(err)
	}

	n, err := s.mat.MaterializeRange(ctx, series, s.mat.Now(), horizon)
	if n > 0 {
		s.invalidateCalendar()
	}
	var (
		malformed *recurrence.MalformedRuleError
		badDay    *recurrence.InvalidDayOfMonthError
		partial   *materialize.PartialFailureError
	)
	switch {
	case err == nil:
	case errors.Is(err, materialize.ErrNotActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.As(err, &malformed), errors.As(err, &badDay):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, materialize.ErrTruncated) && errors.As(err, &partial):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"count": partial.Created, "error": partial.Err.Error()})
	case errors.As(err, &partial):
		appLog.Error("generate events partially failed", err, "id", id, "actor", actor(c))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"count": partial.Created, "error": partial.Err.Error()})
	default:
		return storeError(err)
	}

	appLog.Info("generate events", "id", id, "count", n, "horizon", recurrence.DateOf(horizon), "actor", actor(c))
	return c.JSON(fiber.Map{"count": n})
}

// handleImport creates series from the RRULE VEVENTs of an iCalendar body,
// or of the feed at ?url=. With ?generate=true each imported active series is
// materialized to the default horizon.
func (s *Server) handleImport(c *fiber.Ctx) error {
	ctx := c.UserContext()

	body := c.Body()
	// Query values alias the request buffer; the fetcher keeps the URL.
	if feedURL := strings.TrimSpace(utils.CopyString(c.Query("url"))); feedURL != "" {
		res, err := s.fetcher.Fetch(ctx, feedURL)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		body = res.Body
	}

	parsed, err := ics.ParseRecurring(body, s.mat.Location())
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	generate := c.QueryBool("generate", false)
	created := make([]seriesView, 0, len(parsed.Drafts))
	skipped := make([]fiber.Map, 0, len(parsed.Skipped))
	for _, sk := range parsed.Skipped {
		skipped = append(skipped, fiber.Map{"uid": sk.UID, "reason": sk.Reason})
	}
	generated := 0
	for _, d := range parsed.Drafts {
		series := d.Series
		if err := s.store.CreateRecurringEvent(ctx, &series); err != nil {
			return storeError(err)
		}
		created = append(created, viewOf(series))
		if !generate || series.Status != model.SeriesActive {
			continue
		}
		n, err := s.mat.MaterializeRange(ctx, series, s.mat.Now(), s.mat.DefaultHorizon())
		generated += n
		if err != nil {
			skipped = append(skipped, fiber.Map{"uid": d.UID, "reason": "imported but not generated: " + err.Error()})
		}
	}
	if len(created) > 0 {
		s.invalidateCalendar()
	}

	appLog.Info("ics import", "created", len(created), "skipped", len(skipped), "generated", generated, "actor", actor(c))
	status := fiber.StatusOK
	if len(created) > 0 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"recurring_events": created,
		"skipped":          skipped,
		"generated_count":  generated,
	})
}

// previewRequest drives a builder session. Either rrule is given, or the
// individual fields are applied on top of the defaults.
type previewRequest struct {
	Rule      string   `json:"rrule"`
	DTStart   string   `json:"dtstart"`
	Count     int      `json:"count" validate:"omitempty,min=1,max=50"`
	Frequency string   `json:"frequency" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY YEARLY"`
	Interval  int      `json:"interval" validate:"omitempty,min=1"`
	Weekdays  []string `json:"weekdays" validate:"omitempty,dive,len=2"`
	MonthDay  int      `json:"month_day" validate:"omitempty,min=1,max=31"`
	End       *struct {
		Mode  string          `json:"mode" validate:"oneof=never count until"`
		Count int             `json:"count"`
		Until recurrence.Date `json:"until"`
	} `json:"end"`
}

// handlePreview returns the rule text, a readable description and the next
// occurrences for a rule being edited.
func (s *Server) handlePreview(c *fiber.Ctx) error {
	var in previewRequest
	if err := s.decodeBody(c, "recurrence", &in); err != nil {
		return err
	}
	loc := s.mat.Location()
	start := s.mat.Now()
	if in.DTStart != "" {
		t, err := parseStart(in.DTStart, loc)
		if err != nil {
			return err
		}
		start = t
	}

	b := recurrence.NewBuilder(start)
	count := s.cfg.PreviewCount
	if in.Count > 0 {
		count = in.Count
	}
	if count > 0 {
		if err := b.SetPreviewCount(count); err != nil {
			return unprocessable("%v", err)
		}
	}

	var warning string
	if in.Rule != "" {
		if err := b.LoadFromExisting(in.Rule, start); err != nil {
			warning = err.Error()
		}
	} else if err := applyPreviewFields(b, in); err != nil {
		return unprocessable("%v", err)
	}

	occurrences := make([]string, 0, count)
	for _, t := range b.Preview() {
		occurrences = append(occurrences, t.Format("2006-01-02"))
	}
	resp := fiber.Map{
		"rrule":       b.RuleText(),
		"description": recurrence.Humanize(b.Rule()),
		"dtstart":     recurrence.DateOf(b.StartDate()),
		"occurrences": occurrences,
	}
	if warning != "" {
		resp["warning"] = warning
	}
	return c.JSON(resp)
}

func applyPreviewFields(b *recurrence.Builder, in previewRequest) error {
	if in.Frequency != "" {
		if err := b.SetFrequency(recurrence.Frequency(in.Frequency)); err != nil {
			return err
		}
	}
	if in.Interval > 0 {
		if err := b.SetInterval(in.Interval); err != nil {
			return err
		}
	}
	seen := make(map[time.Weekday]bool, len(in.Weekdays))
	for _, code := range in.Weekdays {
		day, err := recurrence.ParseWeekday(code)
		if err != nil {
			return err
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		if err := b.ToggleWeekday(day); err != nil {
			return err
		}
	}
	if in.MonthDay > 0 {
		if err := b.SetMonthDay(in.MonthDay); err != nil {
			return err
		}
	}
	if in.End != nil {
		var t recurrence.Termination
		switch in.End.Mode {
		case "count":
			t = recurrence.After(in.End.Count)
		case "until":
			t = recurrence.Until(in.End.Until)
		default:
			t = recurrence.Never()
		}
		if err := b.SetTermination(t); err != nil {
			return err
		}
	}
	return nil
}
