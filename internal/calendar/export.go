package calendar

import (
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/schedkit/schedkit/internal/model"
)

// WriteFeed encodes confirmed bookings as a VCALENDAR so actors can
// subscribe to their reserved windows from any calendar app.
func WriteFeed(w io.Writer, actorID string, bookings []model.Booking) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//schedkit//EN")
	cal.Props.SetText("X-WR-CALNAME", "schedkit bookings for "+actorID)

	for _, b := range bookings {
		if b.Status != model.StatusConfirmed {
			continue
		}
		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, b.ID+"@schedkit")
		ve.Props.SetText(ical.PropSummary, "Booked: "+b.Requester.Name)
		ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
		ve.Props.SetDateTime(ical.PropDateTimeStart, b.Window.Start.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, b.Window.End.UTC())
		if b.Requester.Email != "" {
			ve.Props.SetText(ical.PropDescription, b.Requester.Email)
		}
		cal.Children = append(cal.Children, ve)
	}

	return ical.NewEncoder(w).Encode(cal)
}
