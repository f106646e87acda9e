package genie

// Status is the lifecycle state of a conversation message as reported by the
// query service. Values outside the known set are kept verbatim.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusFetchingMetadata Status = "FETCHING_METADATA"
	StatusExecutingQuery   Status = "EXECUTING_QUERY"
	StatusCompleted        Status = "COMPLETED"
	StatusFailed           Status = "FAILED"
	// StatusUnknown is assigned when the service omits the status field.
	StatusUnknown Status = "UNKNOWN"
)

// Known reports whether s is one of the documented states.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusFetchingMetadata, StatusExecutingQuery, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}
