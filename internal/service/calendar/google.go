package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
)

// Google reads free/busy data and writes events through the Google
// Calendar API with a service account.
type Google struct {
	svc    *gcal.Service
	loc    *time.Location
	logger *logger.Logger
}

func NewGoogle(ctx context.Context, credentialsFile string, loc *time.Location, log *logger.Logger) (*Google, error) {
	svc, err := gcal.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return &Google{svc: svc, loc: loc, logger: log}, nil
}

func (g *Google) FetchBusy(ctx context.Context, ref, from, to string) (Busy, error) {
	timeMin, timeMax, err := Range(from, to, g.loc)
	if err != nil {
		return nil, apperrors.Validation("invalid date range", err)
	}

	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  timeMin.Format(time.RFC3339),
		TimeMax:  timeMax.Format(time.RFC3339),
		TimeZone: g.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: ref}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, apperrors.ExternalService("calendar", err)
	}

	cal, ok := resp.Calendars[ref]
	if !ok {
		return nil, apperrors.ExternalService("calendar", fmt.Errorf("no free/busy data for %s", ref))
	}
	if len(cal.Errors) > 0 {
		reasons := make([]string, 0, len(cal.Errors))
		for _, e := range cal.Errors {
			reasons = append(reasons, e.Reason)
		}
		return nil, apperrors.ExternalService("calendar", fmt.Errorf("free/busy errors for %s: %s", ref, strings.Join(reasons, ", ")))
	}

	busy := Busy{}
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			g.logger.Warn("skipping unparsable busy period", "calendar", ref, "start", period.Start)
			continue
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			g.logger.Warn("skipping unparsable busy period", "calendar", ref, "end", period.End)
			continue
		}
		busy.Add(start, end, g.loc)
	}
	busy.Sort()
	return busy, nil
}

func (g *Google) PushReservation(ctx context.Context, ref string, start, end time.Time, label string) (string, error) {
	evt, err := g.svc.Events.Insert(ref, &gcal.Event{
		Summary: label,
		Start:   &gcal.EventDateTime{DateTime: start.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()},
		End:     &gcal.EventDateTime{DateTime: end.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()},
	}).Context(ctx).Do()
	if err != nil {
		return "", apperrors.ExternalService("calendar", err)
	}
	return evt.Id, nil
}

func (g *Google) RemoveReservation(ctx context.Context, ref, eventID string) error {
	if err := g.svc.Events.Delete(ref, eventID).Context(ctx).Do(); err != nil {
		return apperrors.ExternalService("calendar", err)
	}
	return nil
}
