package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/database"
)

// DefaultRefreshSpec is how often the urgent segments snapshot is rebuilt unless configured otherwise
const DefaultRefreshSpec = "@every 5m"

// RefreshFunc is called with the number of urgent segments after every successful refresh
type RefreshFunc func(count int)

// UrgentSegmentRefresher periodically rebuilds the urgent segments snapshot
type UrgentSegmentRefresher struct {
	db        database.Datastore
	onRefresh RefreshFunc
	cron      *cron.Cron
}

// NewUrgentSegmentRefresher schedules a snapshot refresh according to a cron spec, such as "@every 5m"
func NewUrgentSegmentRefresher(db database.Datastore, spec string, onRefresh RefreshFunc) (*UrgentSegmentRefresher, error) {
	if spec == "" {
		spec = DefaultRefreshSpec
	}

	r := &UrgentSegmentRefresher{db: db, onRefresh: onRefresh, cron: cron.New()}

	if err := r.cron.AddFunc(spec, r.Refresh); err != nil {
		return nil, fmt.Errorf("invalid urgent segments refresh schedule %q: %w", spec, err)
	}

	return r, nil
}

// Refresh rebuilds the snapshot right away
func (r *UrgentSegmentRefresher) Refresh() {
	count, err := r.db.RefreshUrgentSegments(context.Background())
	if err != nil {
		log.Errorf("Scheduled refresh of urgent segments failed: %s", err.Error())
		return
	}

	if r.onRefresh != nil {
		r.onRefresh(count)
	}
}

// Start runs an initial refresh and then starts the schedule
func (r *UrgentSegmentRefresher) Start() {
	r.Refresh()
	r.cron.Start()
}

// Stop stops the schedule. A refresh that is already running is allowed to finish.
func (r *UrgentSegmentRefresher) Stop() {
	r.cron.Stop()
}
