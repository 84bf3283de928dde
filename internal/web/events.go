package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
)

// handleListEvents lists events. Besides the shared filters it accepts
// ?source_recurring_event_id= to show one series.
func (s *Server) handleListEvents(c *fiber.Ctx) error {
	opts := listOptions(c)
	if opts.Upcoming {
		opts.Today = recurrence.DateOf(s.mat.Now())
	}
	if raw := c.Query("source_recurring_event_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid source_recurring_event_id")
		}
		opts.SourceRecurringEventID = &id
	}

	p, err := s.store.ListEvents(c.UserContext(), opts)
	if err != nil {
		return storeError(err)
	}
	items := p.Items
	if items == nil {
		items = []model.Event{}
	}
	return c.JSON(fiber.Map{
		"events":      items,
		"total_count": p.TotalCount,
		"pagination":  paginationOf(p),
	})
}

func (s *Server) handleGetEvent(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := s.store.GetEvent(c.UserContext(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(fiber.Map{"event": e})
}

// handleCreateEvent stores a standalone event. Generated events are only
// created by the materializer.
func (s *Server) handleCreateEvent(c *fiber.Ctx) error {
	var in eventInput
	if err := s.decodeBody(c, "event", &in); err != nil {
		return err
	}
	var e model.Event
	if err := in.apply(&e, true); err != nil {
		return err
	}
	if err := s.store.CreateEvent(c.UserContext(), &e); err != nil {
		return storeError(err)
	}
	s.invalidateCalendar()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"event": e})
}

// handleUpdateEvent edits one event. A generated event keeps its series
// reference, so later generation runs never recreate it.
func (s *Server) handleUpdateEvent(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in eventInput
	if err := s.decodeBody(c, "event", &in); err != nil {
		return err
	}
	ctx := c.UserContext()
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if err := in.apply(&e, false); err != nil {
		return err
	}
	if err := s.store.UpdateEvent(ctx, &e); err != nil {
		return storeError(err)
	}
	s.invalidateCalendar()
	return c.JSON(fiber.Map{"event": e})
}

func (s *Server) handleDeleteEvent(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	n, err := s.store.DeleteEvents(c.UserContext(), id)
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return fiber.NewError(fiber.StatusNotFound, "not found")
	}
	s.invalidateCalendar()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleBulkDestroyEvents(c *fiber.Ctx) error {
	var in idsRequest
	if err := s.decodeBody(c, "event", &in); err != nil {
		return err
	}
	n, err := s.store.DeleteEvents(c.UserContext(), in.IDs...)
	if err != nil {
		return storeError(err)
	}
	s.invalidateCalendar()
	appLog.Info("events deleted", "requested", len(in.IDs), "deleted", n, "actor", actor(c))
	return c.JSON(fiber.Map{"deleted": n})
}
