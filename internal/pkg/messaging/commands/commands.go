package commands

const (
	//RefreshUrgentSegmentsContentType is the content type for administrative snapshot refreshes
	RefreshUrgentSegmentsContentType = "application/vnd-diwise-refreshurgentsegments+json"
)

// RefreshUrgentSegments is a command that requests a rebuild of the urgent segments snapshot
type RefreshUrgentSegments struct {
	RequestedBy string `json:"requestedBy,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// ContentType returns the content type that this command will be sent as
func (rus *RefreshUrgentSegments) ContentType() string {
	return RefreshUrgentSegmentsContentType
}
