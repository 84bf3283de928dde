package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
)

// decodeBody reads a JSON body into out and validates it. The payload may be
// wrapped in an envelope named key, e.g. {"event": {...}}.
func (s *Server) decodeBody(c *fiber.Ctx, key string, out any) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "request body is required")
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if inner, ok := env[key]; ok {
		body = inner
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if err := s.validate.Struct(out); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return fiber.NewError(fiber.StatusUnprocessableEntity, strings.Join(msgs, "; "))
}

func unprocessable(format string, args ...any) error {
	return fiber.NewError(fiber.StatusUnprocessableEntity, fmt.Sprintf(format, args...))
}

func parseID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// idsRequest is the body of the bulk_destroy endpoints.
type idsRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
}

// recurringInput is the create/update payload of a recurring series. Nil
// fields are left unchanged on update.
type recurringInput struct {
	Title            *string `json:"title" validate:"omitempty,max=255"`
	Description      *string `json:"description"`
	Location         *string `json:"location" validate:"omitempty,max=255"`
	EventTime        *string `json:"event_time"`
	FeaturedImageURL *string `json:"featured_image_url" validate:"omitempty,url"`
	Rule             *string `json:"rrule"`
	DTStart          *string `json:"dtstart"`
	Status           *string `json:"status" validate:"omitempty,oneof=active paused cancelled"`
}

func (in recurringInput) apply(r *model.RecurringEvent, loc *time.Location, create bool) error {
	if create {
		switch {
		case in.Title == nil:
			return unprocessable("title is required")
		case in.Rule == nil:
			return unprocessable("rrule is required")
		case in.DTStart == nil:
			return unprocessable("dtstart is required")
		}
		r.Status = model.SeriesActive
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return unprocessable("title must not be blank")
		}
		r.Title = title
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.Location != nil {
		r.Location = strings.TrimSpace(*in.Location)
	}
	if in.FeaturedImageURL != nil {
		r.FeaturedImageURL = strings.TrimSpace(*in.FeaturedImageURL)
	}
	if in.EventTime != nil {
		clock, err := normalizeClock(*in.EventTime)
		if err != nil {
			return err
		}
		r.EventTime = clock
	}
	if in.Rule != nil {
		rule, err := recurrence.Parse(*in.Rule)
		if err != nil {
			return unprocessable("%v", err)
		}
		r.Rule = rule.String()
	}
	if in.DTStart != nil {
		start, err := parseStart(*in.DTStart, loc)
		if err != nil {
			return err
		}
		r.DTStart = start
	}
	if in.Status != nil {
		r.Status = model.SeriesStatus(*in.Status)
	}
	return nil
}

// eventInput is the create/update payload of a single event.
type eventInput struct {
	Title            *string          `json:"title" validate:"omitempty,max=255"`
	Description      *string          `json:"description"`
	Location         *string          `json:"location" validate:"omitempty,max=255"`
	EventDate        *recurrence.Date `json:"event_date"`
	EventTime        *string          `json:"event_time"`
	FeaturedImageURL *string          `json:"featured_image_url" validate:"omitempty,url"`
	Status           *string          `json:"status" validate:"omitempty,oneof=upcoming completed cancelled"`
}

func (in eventInput) apply(e *model.Event, create bool) error {
	if create {
		switch {
		case in.Title == nil:
			return unprocessable("title is required")
		case in.EventDate == nil || in.EventDate.IsZero():
			return unprocessable("event_date is required")
		}
		e.Status = model.EventUpcoming
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return unprocessable("title must not be blank")
		}
		e.Title = title
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Location != nil {
		e.Location = strings.TrimSpace(*in.Location)
	}
	if in.FeaturedImageURL != nil {
		e.FeaturedImageURL = strings.TrimSpace(*in.FeaturedImageURL)
	}
	if in.EventDate != nil {
		if in.EventDate.IsZero() {
			return unprocessable("event_date must not be empty")
		}
		e.EventDate = *in.EventDate
	}
	if in.EventTime != nil {
		clock, err := normalizeClock(*in.EventTime)
		if err != nil {
			return err
		}
		e.EventTime = clock
	}
	if in.Status != nil {
		e.Status = model.EventStatus(*in.Status)
	}
	return nil
}

// normalizeClock accepts "" (no time), "HH:MM" or "HH:MM:SS" and returns
// "HH:MM".
func normalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	h, m, ok := model.ParseClock(s)
	if !ok {
		return "", unprocessable("event_time %q is not HH:MM", s)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// parseStart reads a series start as a date, a local date-time in loc, or an
// RFC 3339 timestamp.
func parseStart(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, unprocessable("dtstart %q is not a date or timestamp", s)
}
