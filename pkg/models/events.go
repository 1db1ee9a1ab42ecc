package models

// LocateStatus is the outcome reported for one identifier by a watcher.
type LocateStatus int

const (
	StatusNotLocated LocateStatus = iota
	StatusLocated
	StatusAlreadyTracked
	StatusNotLocatedAnchorDoesNotExist
)

func (s LocateStatus) String() string {
	switch s {
	case StatusNotLocated:
		return "NotLocated"
	case StatusLocated:
		return "Located"
	case StatusAlreadyTracked:
		return "AlreadyTracked"
	case StatusNotLocatedAnchorDoesNotExist:
		return "NotLocatedAnchorDoesNotExist"
	default:
		return "Unknown"
	}
}

// AnchorLocatedEvent is delivered once per identifier a watcher resolves.
// Record is nil unless Status is StatusLocated.
type AnchorLocatedEvent struct {
	WatcherID  int
	Identifier string
	Status     LocateStatus
	Record     *CloudAnchorRecord
}

// LocateCompletedEvent marks the end of a watcher's search.
type LocateCompletedEvent struct {
	WatcherID int
	Cancelled bool
}

// SessionStatus is the environment capture progress published with session updates.
type SessionStatus struct {
	ReadyForCreateProgress       float64
	RecommendedForCreateProgress float64
}
