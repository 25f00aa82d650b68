package calbot

import (
	"context"
	"fmt"
	"time"

	"calbot-go/internal/model"
)

// DispatchDue evaluates every reminder that has no dispatch record for its
// event's current occurrence and sends the ones whose trigger time
// (occurrence minus minutes-before) has arrived. A reminder further past
// its trigger than the grace period is skipped and logged rather than
// fired late, so a long outage does not end in a storm of stale sends.
// One reminder's failure never blocks the rest of the tick.
func (s *Service) DispatchDue(ctx context.Context) error {
	pending, err := s.store.ListPendingReminderOccurrences(ctx)
	if err != nil {
		return fmt.Errorf("listing pending reminders: %w", err)
	}

	now := s.clock.Now()
	sent := 0
	for _, p := range pending {
		trigger := p.OccurrenceAt.Add(-time.Duration(p.MinutesBefore) * time.Minute)
		if now.Before(trigger) {
			continue
		}
		if now.Sub(trigger) > s.grace {
			s.logger.Warn("skipping stale reminder",
				"reminder", p.ReminderID, "occurrence", p.OccurrenceAt, "trigger", trigger)
			continue
		}

		if err := s.deliver(ctx, p); err != nil {
			s.logger.Error("reminder delivery failed", "reminder", p.ReminderID, "error", err)
			continue
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("reminders dispatched", "count", sent)
	}
	return nil
}

// deliver renders and sends one reminder, then records the delivery. The
// record is written only after the room accepted the message: a crash in
// between causes at worst a duplicate send on the next tick, never a
// missed one.
func (s *Service) deliver(ctx context.Context, p *model.ReminderOccurrence) error {
	msg, err := RenderReminder(p)
	if err != nil {
		return fmt.Errorf("rendering reminder: %w", err)
	}

	if err := s.messenger.Send(ctx, p.RoomID, msg); err != nil {
		return fmt.Errorf("sending reminder: %w", err)
	}

	if err := s.store.CreateDispatchRecord(ctx, &model.DispatchRecord{
		ReminderID:   p.ReminderID,
		OccurrenceAt: p.OccurrenceAt,
		SentAt:       s.clock.Now(),
	}); err != nil {
		return fmt.Errorf("recording dispatch: %w", err)
	}

	s.logger.Info("reminder sent", "reminder", p.ReminderID, "room", p.RoomID, "occurrence", p.OccurrenceAt)
	return nil
}
