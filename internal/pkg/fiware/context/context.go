package context

import (
	"context"
	"errors"
	"strings"
	"time"

	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/database"
)

const (
	entityType     = "RoadSegment"
	entityIDPrefix = "urn:ngsi-ld:RoadSegment:"
)

// Property is an NGSI-LD property with an optional observation time
type Property struct {
	Type       string      `json:"type"`
	Value      interface{} `json:"value"`
	ObservedAt *string     `json:"observedAt,omitempty"`
}

// GeoProperty is an NGSI-LD geo property holding a GeoJSON geometry
type GeoProperty struct {
	Type  string     `json:"type"`
	Value LineString `json:"value"`
}

// LineString is a GeoJSON line in lon/lat order
type LineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// RoadSegment is the NGSI-LD representation of a segment and its latest condition index
type RoadSegment struct {
	ID                 string      `json:"id"`
	Type               string      `json:"type"`
	Name               Property    `json:"name"`
	Length             Property    `json:"length"`
	Location           GeoProperty `json:"location"`
	RoadConditionIndex *Property   `json:"roadConditionIndex,omitempty"`
	Context            []string    `json:"@context"`
}

// NewRoadSegment converts a segment and its latest inspection into an NGSI-LD entity
func NewRoadSegment(si database.SegmentInspection) RoadSegment {
	s := si.Segment

	entity := RoadSegment{
		ID:     entityIDPrefix + s.Code,
		Type:   entityType,
		Name:   Property{Type: "Property", Value: s.Name},
		Length: Property{Type: "Property", Value: s.Length},
		Location: GeoProperty{
			Type: "GeoProperty",
			Value: LineString{
				Type:        "LineString",
				Coordinates: [][2]float64{{s.StartLon, s.StartLat}, {s.EndLon, s.EndLat}},
			},
		},
		Context: []string{"https://schema.lab.fiware.org/ld/context", "https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld"},
	}

	if si.Latest != nil && si.Latest.RCI != nil {
		observedAt := si.Latest.InspectedAt.UTC().Format(time.RFC3339)
		entity.RoadConditionIndex = &Property{Type: "Property", Value: *si.Latest.RCI, ObservedAt: &observedAt}
	}

	return entity
}

type contextSource struct {
	db database.Datastore
}

// CreateSource instantiates and returns a Fiware ContextSource that wraps the provided db interface
func CreateSource(db database.Datastore) ngsi.ContextSource {
	return &contextSource{db: db}
}

func (cs *contextSource) CreateEntity(typeName, entityID string, req ngsi.Request) error {
	return errors.New("road segments are registered through the segments api and can not be created using ngsi-ld")
}

func (cs *contextSource) GetEntities(query ngsi.Query, callback ngsi.QueryEntitiesCallback) error {
	segments, err := cs.db.ListLatestInspectionPerSegment(context.Background())
	if err != nil {
		return err
	}

	for _, si := range segments {
		err = callback(NewRoadSegment(si))
		if err != nil {
			break
		}
	}

	return err
}

func (cs contextSource) ProvidesAttribute(attributeName string) bool {
	return attributeName == "roadConditionIndex" || attributeName == "name" || attributeName == "location"
}

func (cs contextSource) ProvidesEntitiesWithMatchingID(entityID string) bool {
	return strings.HasPrefix(entityID, entityIDPrefix)
}

func (cs contextSource) ProvidesType(typeName string) bool {
	return typeName == entityType
}

func (cs contextSource) UpdateEntityAttributes(entityID string, req ngsi.Request) error {
	return errors.New("UpdateEntityAttributes is not supported by this service")
}
