package slots

// ConflictKind classifies why a candidate record was rejected.
type ConflictKind string

const (
	KindInvalidRange         ConflictKind = "invalid_range"
	KindInvalidTimePair      ConflictKind = "invalid_time_pair"
	KindOverlapInWindow      ConflictKind = "overlap_in_window"
	KindOverlapsAbsence      ConflictKind = "overlaps_absence"
	KindOverlapsAvailability ConflictKind = "overlaps_availability"
	KindSlotTaken            ConflictKind = "slot_taken"
	KindSlotUnavailable      ConflictKind = "slot_unavailable"
	KindMalformedTime        ConflictKind = "malformed_time"
)

type Conflict struct {
	Kind ConflictKind
	Msg  string
}

func (c *Conflict) Error() string {
	if c.Msg == "" {
		return string(c.Kind)
	}
	return c.Msg
}

// Is matches any Conflict of the same kind, so callers can test against the Err* values.
func (c *Conflict) Is(target error) bool {
	t, ok := target.(*Conflict)
	return ok && t.Kind == c.Kind
}

func conflict(kind ConflictKind, msg string) *Conflict {
	return &Conflict{Kind: kind, Msg: msg}
}

var (
	ErrInvalidRange         = &Conflict{Kind: KindInvalidRange}
	ErrInvalidTimePair      = &Conflict{Kind: KindInvalidTimePair}
	ErrOverlapInWindow      = &Conflict{Kind: KindOverlapInWindow}
	ErrOverlapsAbsence      = &Conflict{Kind: KindOverlapsAbsence}
	ErrOverlapsAvailability = &Conflict{Kind: KindOverlapsAvailability}
	ErrSlotTaken            = &Conflict{Kind: KindSlotTaken}
	ErrSlotUnavailable      = &Conflict{Kind: KindSlotUnavailable}
	ErrMalformedTime        = &Conflict{Kind: KindMalformedTime}
)
