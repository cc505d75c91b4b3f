// Package ics renders a schedule's occurrences as an iCalendar feed so they
// can be subscribed to from any calendar client.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/warp/timeline-engine/timeline"
)

const productID = "-//warp//timeline-engine//EN"

// PropertyStatus carries the occurrence status on each VEVENT.
const PropertyStatus ical.ComponentProperty = "X-TIMELINE-STATUS"

// EventDuration is the length given to each occurrence event.
const EventDuration = time.Hour

// Export builds a calendar with one VEVENT per occurrence. stamp is used as
// DTSTAMP so output is reproducible for a given clock.
func Export(s timeline.Schedule, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(s.Name)

	for _, occ := range s.Occurrences {
		ev := cal.AddEvent(EventUID(s.ID, occ.Period))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(occ.DueAt.UTC())
		ev.SetEndAt(occ.DueAt.UTC().Add(EventDuration))
		ev.SetSummary(fmt.Sprintf("%s (%s)", s.Name, occ.Period))
		if occ.Notes != "" {
			ev.SetDescription(occ.Notes)
		}
		ev.SetProperty(ical.ComponentPropertyCategories, string(occ.Status))
		ev.SetProperty(PropertyStatus, string(occ.Status))
		if occ.CompletedAt != nil {
			ev.SetProperty(ical.ComponentPropertyCompleted, occ.CompletedAt.UTC().Format("20060102T150405Z"))
		}
	}
	return cal
}

// Serialize is Export rendered to text.
func Serialize(s timeline.Schedule, stamp time.Time) string {
	return Export(s, stamp).Serialize()
}

// EventUID is the stable UID of one occurrence.
func EventUID(scheduleID, period string) string {
	return scheduleID + "-" + period + "@timeline-engine"
}
