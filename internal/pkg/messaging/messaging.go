package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/database"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/messaging/commands"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/messaging/events"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/streadway/amqp"
)

// Publisher is the part of the messaging context that we need to publish events
type Publisher interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

// CreateRoadDefectObservedReceiver is a closure that take a datastore and records incoming defect observations
func CreateRoadDefectObservedReceiver(db database.Datastore) messaging.TopicMessageHandler {
	return func(msg amqp.Delivery) {
		log.Info("Message received from topic: " + string(msg.Body))

		evt := &events.RoadDefectObserved{}
		err := json.Unmarshal(msg.Body, evt)

		if err != nil {
			log.Error("Failed to unmarshal message")
			return
		}

		defect, err := db.CreateDefect(context.Background(), persistence.Defect{
			InspectionID: evt.InspectionID,
			DefectType:   evt.DefectType,
			Severity:     evt.Severity,
			LengthM:      evt.LengthM,
			WidthM:       evt.WidthM,
			DepthCM:      evt.DepthCM,
			LocationLat:  evt.Latitude,
			LocationLon:  evt.Longitude,
			Comments:     evt.Comments,
		})

		if err != nil {
			var verr *database.ValidationError
			if errors.As(err, &verr) {
				log.Warnf("Rejected defect observation for inspection %d: %s", evt.InspectionID, verr.Error())
				return
			}

			log.Error(err.Error())
			return
		}

		log.Infof("Recorded %s defect %d on inspection %d.", defect.DefectType, defect.ID, defect.InspectionID)
	}
}

// CreateRefreshUrgentSegmentsCommandHandler returns a command handler that rebuilds the urgent
// segments snapshot on request
func CreateRefreshUrgentSegmentsCommandHandler(db database.Datastore, pub Publisher) messaging.CommandHandler {
	return func(wrapper messaging.CommandMessageWrapper) error {
		cmd := &commands.RefreshUrgentSegments{}
		if err := json.Unmarshal(wrapper.Body(), cmd); err != nil {
			log.Error("Failed to unmarshal command")
			return err
		}

		log.Infof("Urgent segments refresh requested by %q.", cmd.RequestedBy)

		count, err := db.RefreshUrgentSegments(context.Background())
		if err != nil {
			log.Errorf("Failed to refresh urgent segments: %s", err.Error())
			return err
		}

		PublishUrgentSegmentsRefreshed(pub, count)
		return nil
	}
}

// NewScoreListener returns a datastore listener that publishes every committed score change
func NewScoreListener(pub Publisher) database.ScoreListener {
	return func(change database.ScoreChange) {
		evt := &events.InspectionScoreUpdated{
			ID:           uuid.NewString(),
			InspectionID: change.InspectionID,
			SegmentCode:  change.SegmentCode,
			RCI:          change.RCI,
			Timestamp:    change.Timestamp.Format(time.RFC3339),
		}

		if err := pub.PublishOnTopic(evt); err != nil {
			log.Errorf("Failed to publish score update for inspection %d: %s", change.InspectionID, err.Error())
		}
	}
}

// PublishUrgentSegmentsRefreshed announces that a new urgent segments snapshot is available
func PublishUrgentSegmentsRefreshed(pub Publisher, count int) {
	if pub == nil {
		return
	}

	evt := &events.UrgentSegmentsRefreshed{
		ID:        uuid.NewString(),
		Count:     count,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := pub.PublishOnTopic(evt); err != nil {
		log.Errorf("Failed to publish urgent segments refresh: %s", err.Error())
	}
}
