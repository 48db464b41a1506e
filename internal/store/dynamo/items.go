package dynamo

import (
	"time"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

// Single-table layout. Every calendar record lives in its doctor's partition:
//
//	DOCTOR#<doctor>  AVAIL#<id>
//	DOCTOR#<doctor>  ABS#<id>
//	DOCTOR#<doctor>  APPT#<date>#<time>#<id>
//	DOCTOR#<doctor>  SLOT#<date>#<time>     held while a booking is active
//	APPTID#<id>      APPTID                 id lookup for appointments
const (
	attrPK = "pk"
	attrSK = "sk"

	prefixDoctor    = "DOCTOR#"
	prefixAvail     = "AVAIL#"
	prefixAbsence   = "ABS#"
	prefixAppt      = "APPT#"
	prefixSlot      = "SLOT#"
	prefixApptIndex = "APPTID#"
	skApptIndex     = "APPTID"
)

func doctorKey(doctorID string) string { return prefixDoctor + doctorID }

func apptSortKey(a domain.Appointment) string {
	return prefixAppt + a.Date.String() + "#" + clockKey(a.Time) + "#" + a.ID
}

func slotSortKey(a domain.Appointment) string {
	return prefixSlot + a.Date.String() + "#" + clockKey(a.Time)
}

// clockKey zero-pads parseable times so "9:30" and "09:30" share a key and sort correctly.
func clockKey(s string) string {
	c, err := domain.ParseClock(s)
	if err != nil {
		return s
	}
	return c.String()
}

type availabilityItem struct {
	PK         string             `dynamodbav:"pk"`
	SK         string             `dynamodbav:"sk"`
	ID         string             `dynamodbav:"id"`
	DoctorID   string             `dynamodbav:"doctorId"`
	Kind       string             `dynamodbav:"kind"`
	StartDate  string             `dynamodbav:"startDate"`
	EndDate    string             `dynamodbav:"endDate"`
	Days       []string           `dynamodbav:"days,omitempty"`
	TimeRanges []domain.TimeRange `dynamodbav:"timeRanges"`
	CreatedAt  string             `dynamodbav:"createdAt"`
	UpdatedAt  string             `dynamodbav:"updatedAt"`
}

func newAvailabilityItem(w domain.AvailabilityWindow) availabilityItem {
	days := make([]string, 0, len(w.Days))
	for _, d := range w.Days {
		days = append(days, d.String())
	}
	return availabilityItem{
		PK:         doctorKey(w.DoctorID),
		SK:         prefixAvail + w.ID,
		ID:         w.ID,
		DoctorID:   w.DoctorID,
		Kind:       string(w.Kind),
		StartDate:  w.StartDate.String(),
		EndDate:    w.EndDate.String(),
		Days:       days,
		TimeRanges: w.TimeRanges,
		CreatedAt:  formatTime(w.CreatedAt),
		UpdatedAt:  formatTime(w.UpdatedAt),
	}
}

func (it availabilityItem) toDomain() (domain.AvailabilityWindow, error) {
	start, err := domain.ParseDate(it.StartDate)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	end, err := domain.ParseDate(it.EndDate)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	days := make([]domain.Weekday, 0, len(it.Days))
	for _, s := range it.Days {
		d, err := domain.ParseWeekday(s)
		if err != nil {
			return domain.AvailabilityWindow{}, err
		}
		days = append(days, d)
	}
	return domain.AvailabilityWindow{
		ID:         it.ID,
		DoctorID:   it.DoctorID,
		Kind:       domain.WindowKind(it.Kind),
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		TimeRanges: it.TimeRanges,
		CreatedAt:  parseTime(it.CreatedAt),
		UpdatedAt:  parseTime(it.UpdatedAt),
	}, nil
}

type absenceItem struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	ID        string `dynamodbav:"id"`
	DoctorID  string `dynamodbav:"doctorId"`
	StartDate string `dynamodbav:"startDate"`
	EndDate   string `dynamodbav:"endDate"`
	Reason    string `dynamodbav:"reason,omitempty"`
	CreatedAt string `dynamodbav:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

func newAbsenceItem(a domain.Absence) absenceItem {
	return absenceItem{
		PK:        doctorKey(a.DoctorID),
		SK:        prefixAbsence + a.ID,
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		StartDate: a.StartDate.String(),
		EndDate:   a.EndDate.String(),
		Reason:    a.Reason,
		CreatedAt: formatTime(a.CreatedAt),
		UpdatedAt: formatTime(a.UpdatedAt),
	}
}

func (it absenceItem) toDomain() (domain.Absence, error) {
	start, err := domain.ParseDate(it.StartDate)
	if err != nil {
		return domain.Absence{}, err
	}
	end, err := domain.ParseDate(it.EndDate)
	if err != nil {
		return domain.Absence{}, err
	}
	return domain.Absence{
		ID:        it.ID,
		DoctorID:  it.DoctorID,
		StartDate: start,
		EndDate:   end,
		Reason:    it.Reason,
		CreatedAt: parseTime(it.CreatedAt),
		UpdatedAt: parseTime(it.UpdatedAt),
	}, nil
}

type appointmentItem struct {
	PK              string `dynamodbav:"pk"`
	SK              string `dynamodbav:"sk"`
	ID              string `dynamodbav:"id"`
	DoctorID        string `dynamodbav:"doctorId"`
	PatientID       string `dynamodbav:"patientId"`
	Type            string `dynamodbav:"type"`
	Date            string `dynamodbav:"date"`
	Time            string `dynamodbav:"time"`
	DurationMinutes int    `dynamodbav:"durationMinutes"`
	Occurred        bool   `dynamodbav:"occurred"`
	Cancelled       bool   `dynamodbav:"cancelled"`
	Details         string `dynamodbav:"details,omitempty"`
	CreatedAt       string `dynamodbav:"createdAt"`
	UpdatedAt       string `dynamodbav:"updatedAt"`
}

func newAppointmentItem(a domain.Appointment) appointmentItem {
	return appointmentItem{
		PK:              doctorKey(a.DoctorID),
		SK:              apptSortKey(a),
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		Type:            a.Type,
		Date:            a.Date.String(),
		Time:            a.Time,
		DurationMinutes: a.DurationMinutes,
		Occurred:        a.Occurred,
		Cancelled:       a.Cancelled,
		Details:         a.Details,
		CreatedAt:       formatTime(a.CreatedAt),
		UpdatedAt:       formatTime(a.UpdatedAt),
	}
}

func (it appointmentItem) toDomain() (domain.Appointment, error) {
	date, err := domain.ParseDate(it.Date)
	if err != nil {
		return domain.Appointment{}, err
	}
	return domain.Appointment{
		ID:              it.ID,
		DoctorID:        it.DoctorID,
		PatientID:       it.PatientID,
		Type:            it.Type,
		Date:            date,
		Time:            it.Time,
		DurationMinutes: it.DurationMinutes,
		Occurred:        it.Occurred,
		Cancelled:       it.Cancelled,
		Details:         it.Details,
		CreatedAt:       parseTime(it.CreatedAt),
		UpdatedAt:       parseTime(it.UpdatedAt),
	}, nil
}

// slotItem marks a slot as held by an active appointment.
type slotItem struct {
	PK            string `dynamodbav:"pk"`
	SK            string `dynamodbav:"sk"`
	AppointmentID string `dynamodbav:"appointmentId"`
}

// indexItem locates an appointment by id.
type indexItem struct {
	PK       string `dynamodbav:"pk"`
	SK       string `dynamodbav:"sk"`
	DoctorID string `dynamodbav:"doctorId"`
	ApptSK   string `dynamodbav:"apptSk"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
