package events

// InspectionScoreUpdated is an event that notifies that the road condition index of an inspection has changed
type InspectionScoreUpdated struct {
	ID           string  `json:"id"`
	InspectionID uint    `json:"inspectionId"`
	SegmentCode  string  `json:"segmentCode"`
	RCI          float64 `json:"rci"`
	Timestamp    string  `json:"timestamp"`
}

// TopicName returns the name of the topic that this event is published on
func (isu *InspectionScoreUpdated) TopicName() string {
	return "events-inspectionscoreupdated"
}

// ContentType returns the content type that this event will be sent as
func (isu *InspectionScoreUpdated) ContentType() string {
	return "application/json"
}

// UrgentSegmentsRefreshed notifies that a new snapshot of urgent road segments is available
type UrgentSegmentsRefreshed struct {
	ID        string `json:"id"`
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp"`
}

// TopicName returns the name of the topic that this event is published on
func (usr *UrgentSegmentsRefreshed) TopicName() string {
	return "events-urgentsegmentsrefreshed"
}

// ContentType returns the content type that this event will be sent as
func (usr *UrgentSegmentsRefreshed) ContentType() string {
	return "application/json"
}

// RoadDefectObserved is published by field systems when a defect has been observed during an inspection
type RoadDefectObserved struct {
	InspectionID uint     `json:"inspectionId"`
	DefectType   string   `json:"defectType"`
	Severity     int      `json:"severity"`
	LengthM      *float64 `json:"lengthM,omitempty"`
	WidthM       *float64 `json:"widthM,omitempty"`
	DepthCM      *float64 `json:"depthCm,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Comments     string   `json:"comments,omitempty"`
}

// TopicName returns the name of the topic that this event is published on
func (rdo *RoadDefectObserved) TopicName() string {
	return "events-roaddefectobserved"
}

// ContentType returns the content type that this event will be sent as
func (rdo *RoadDefectObserved) ContentType() string {
	return "application/json"
}
