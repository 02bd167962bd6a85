package database

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/rci"
)

// Datastore is an interface that is used to inject the database into different handlers to improve testability
type Datastore interface {
	CreateSegment(ctx context.Context, segment persistence.Segment) (*persistence.Segment, error)
	DeleteSegment(ctx context.Context, id uint) error
	GetSegmentByID(ctx context.Context, id uint) (*persistence.Segment, error)
	GetSegmentByCode(ctx context.Context, code string) (*persistence.Segment, error)
	GetSegmentCount(ctx context.Context) (int64, error)
	GetSegmentsNearPoint(ctx context.Context, lat, lon float64, maxDistance uint64) ([]persistence.Segment, error)
	GetSegmentsWithinRect(ctx context.Context, lat0, lon0, lat1, lon1 float64) ([]persistence.Segment, error)
	ListSegments(ctx context.Context) ([]persistence.Segment, error)

	CreateInspector(ctx context.Context, inspector persistence.Inspector) (*persistence.Inspector, error)
	DeleteInspector(ctx context.Context, id uint) error
	GetInspectorByID(ctx context.Context, id uint) (*persistence.Inspector, error)

	CreateInspection(ctx context.Context, inspection persistence.Inspection) (*persistence.Inspection, error)
	DeleteInspection(ctx context.Context, id uint) error
	GetInspectionByID(ctx context.Context, id uint) (*persistence.Inspection, error)
	ListInspectionsForSegment(ctx context.Context, segmentID uint) ([]persistence.Inspection, error)
	RecomputeRCI(ctx context.Context, inspectionID uint) (float64, error)

	CreateDefect(ctx context.Context, defect persistence.Defect) (*persistence.Defect, error)
	DeleteDefect(ctx context.Context, id uint) error
	GetDefectByID(ctx context.Context, id uint) (*persistence.Defect, error)
	ListDefects(ctx context.Context, inspectionID uint) ([]persistence.Defect, error)
	UpdateDefect(ctx context.Context, id uint, defect persistence.Defect) (*persistence.Defect, error)

	AddDefectImage(ctx context.Context, image persistence.DefectImage) (*persistence.DefectImage, error)
	DeleteDefectImage(ctx context.Context, id uint) error
	ListDefectImages(ctx context.Context, defectID uint) ([]persistence.DefectImage, error)

	CreateMaintenanceAction(ctx context.Context, action persistence.MaintenanceAction) (*persistence.MaintenanceAction, error)
	ListMaintenanceActions(ctx context.Context, segmentID uint) ([]persistence.MaintenanceAction, error)
	UpdateMaintenanceStatus(ctx context.Context, id uint, status persistence.MaintenanceStatus, performed *time.Time) (*persistence.MaintenanceAction, error)

	ListLatestInspectionPerSegment(ctx context.Context) ([]SegmentInspection, error)
	ListUrgentSegments(ctx context.Context) ([]persistence.UrgentSegment, error)
	RefreshUrgentSegments(ctx context.Context) (int, error)

	RegisterScoreListener(listener ScoreListener)
}

// ScoreChange describes a committed recomputation of an inspection's road condition index
type ScoreChange struct {
	InspectionID uint
	SegmentID    uint
	SegmentCode  string
	RCI          float64
	Timestamp    time.Time
}

// ScoreListener is notified after a transaction that changed a score has committed
type ScoreListener func(ScoreChange)

// ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

// NewPostgreSQLConnector opens a connection to a postgresql database
func NewPostgreSQLConnector() ConnectorFunc {
	dbHost := os.Getenv("ROADCONDITION_DB_HOST")
	username := os.Getenv("ROADCONDITION_DB_USER")
	dbName := os.Getenv("ROADCONDITION_DB_NAME")
	password := os.Getenv("ROADCONDITION_DB_PASSWORD")
	sslMode := getEnv("ROADCONDITION_DB_SSLMODE", "require")

	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", dbHost, username, dbName, sslMode, password)

	return func() (*gorm.DB, error) {
		for attempt := 1; ; attempt++ {
			log.Infof("Connecting to database host %s ...", dbHost)
			db, err := gorm.Open(postgres.Open(dbURI), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Silent),
			})
			if err == nil {
				return db, nil
			}

			if attempt == 10 {
				return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
			}

			log.Errorf("Failed to connect to database %s", err.Error())
			time.Sleep(3 * time.Second)
		}
	}
}

// NewSQLiteConnector opens a connection to a private in memory sqlite database
func NewSQLiteConnector() ConnectorFunc {
	return NewSQLiteFileConnector(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}

// NewSQLiteFileConnector opens a connection to the sqlite database at the given dsn,
// with foreign key enforcement switched on
func NewSQLiteFileConnector(dsn string) ConnectorFunc {
	if strings.Contains(dsn, "?") {
		dsn = dsn + "&_foreign_keys=1"
	} else {
		dsn = dsn + "?_foreign_keys=1"
	}

	return func() (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	}
}

// Option configures optional behaviour of the datastore
type Option func(*myDB)

// WithCalculator replaces the default rci calculator
func WithCalculator(calc *rci.Calculator) Option {
	return func(db *myDB) {
		db.calculator = calc
	}
}

// NewDatabaseConnection creates and returns a new instance of the Datastore interface
func NewDatabaseConnection(connect ConnectorFunc, datafile io.Reader, opts ...Option) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(
		&persistence.Segment{},
		&persistence.Inspector{},
		&persistence.Inspection{},
		&persistence.Defect{},
		&persistence.DefectImage{},
		&persistence.MaintenanceAction{},
		&persistence.UrgentSegment{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	db := &myDB{
		impl:       impl,
		calculator: rci.NewCalculator(rci.DefaultWeights()),
	}

	for _, opt := range opts {
		opt(db)
	}

	if datafile != nil {
		err = initFromReader(db, datafile)
		if err != nil {
			return nil, err
		}

		count, _ := db.GetSegmentCount(context.Background())
		log.Infof("Datastore seeded with %d road segments.", count)
	}

	return db, nil
}

// initFromReader reads lines of the form code;name;lat0;lon0;lat1;lon1[;length] and registers
// every segment that is not already known
func initFromReader(db *myDB, rd io.Reader) error {
	reader := bufio.NewReader(rd)
	ctx := context.Background()

	log.Infof("Seeding datastore ...")

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			log.Errorf(" > Failed with error: %v", err)
			return err
		}

		line = strings.TrimRight(line, "\r\n")
		parts := strings.Split(line, ";")

		if len(parts) >= 6 && !strings.HasPrefix(line, "#") {
			segment, parseErr := parseSegmentRecord(parts)
			if parseErr != nil {
				log.Errorf("Failed to parse segment record %q: %s. Skipping record.", line, parseErr.Error())
			} else if _, lookupErr := db.GetSegmentByCode(ctx, segment.Code); lookupErr == nil {
				log.Debugf("Segment %s already registered.", segment.Code)
			} else if _, createErr := db.CreateSegment(ctx, segment); createErr != nil {
				log.Errorf("Failed to seed segment %s: %s", segment.Code, createErr.Error())
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}

func parseSegmentRecord(parts []string) (persistence.Segment, error) {
	coords := [4]float64{}

	for i := range coords {
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[i+2]), 64)
		if err != nil {
			return persistence.Segment{}, fmt.Errorf("bad coordinate %q", parts[i+2])
		}
		coords[i] = value
	}

	segment := persistence.Segment{
		Code:     strings.TrimSpace(parts[0]),
		Name:     strings.TrimSpace(parts[1]),
		StartLat: coords[0], StartLon: coords[1],
		EndLat: coords[2], EndLon: coords[3],
	}

	if len(parts) > 6 && strings.TrimSpace(parts[6]) != "" {
		length, err := strconv.ParseFloat(strings.TrimSpace(parts[6]), 64)
		if err != nil {
			return persistence.Segment{}, fmt.Errorf("bad length %q", parts[6])
		}
		segment.Length = length
	} else {
		segment.Length = lengthOf(segment)
	}

	return segment, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

type myDB struct {
	impl       *gorm.DB
	calculator *rci.Calculator

	listenerMutex sync.RWMutex
	listeners     []ScoreListener

	refreshMutex sync.Mutex
}

func (db *myDB) RegisterScoreListener(listener ScoreListener) {
	db.listenerMutex.Lock()
	defer db.listenerMutex.Unlock()

	db.listeners = append(db.listeners, listener)
}

func (db *myDB) notify(changes ...ScoreChange) {
	db.listenerMutex.RLock()
	defer db.listenerMutex.RUnlock()

	for _, change := range changes {
		log.Infof("Road condition index of inspection %d on segment %s is now %.1f.", change.InspectionID, change.SegmentCode, change.RCI)
		for _, listener := range db.listeners {
			listener(change)
		}
	}
}

// FOR UPDATE and table locks are not understood by sqlite, which serializes writers anyway
func (db *myDB) supportsLocking() bool {
	return db.impl.Dialector.Name() == "postgres"
}
