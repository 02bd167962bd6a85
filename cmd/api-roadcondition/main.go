package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/database"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/messaging"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/messaging/commands"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/messaging/events"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/rci"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/scheduler"
	"github.com/iot-for-tillgenglighet/api-roadcondition/pkg/handler"
	bus "github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
)

func openSegmentsFile(path string) *os.File {
	if path == "" {
		return nil
	}

	datafile, err := os.Open(path)
	if err != nil {
		log.Infof("Failed to open the segments database file %s. Datastore will not be seeded.", path)
		return nil
	}
	return datafile
}

func loadCalculator(path string) *rci.Calculator {
	if path == "" {
		return rci.NewCalculator(rci.DefaultWeights())
	}

	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open rci weights file %s: %s", path, err.Error())
	}
	defer file.Close()

	weights, err := rci.LoadWeights(file)
	if err != nil {
		log.Fatal(err.Error())
	}

	log.Infof("Using rci weights %+v", weights)
	return rci.NewCalculator(weights)
}

func selectConnector() database.ConnectorFunc {
	if os.Getenv("ROADCONDITION_DB_HOST") != "" {
		return database.NewPostgreSQLConnector()
	}

	path := os.Getenv("ROADCONDITION_SQLITE_FILE")
	if path == "" {
		path = "roadcondition.db"
	}

	log.Infof("No database host configured. Using sqlite database %s.", path)
	return database.NewSQLiteFileConnector("file:" + path)
}

var segmentsFileName string
var envFileName string

func main() {
	flag.StringVar(&segmentsFileName, "segsfile", "", "The file to seed road segments from")
	flag.StringVar(&envFileName, "envfile", ".env", "An optional file to load environment variables from")
	flag.Parse()

	log.SetFormatter(&log.JSONFormatter{})

	if err := godotenv.Load(envFileName); err != nil {
		log.Debugf("No environment file loaded from %s.", envFileName)
	}

	serviceName := "api-roadcondition"

	log.Infof("Starting up %s ...", serviceName)

	var seed io.Reader
	datafile := openSegmentsFile(segmentsFileName)
	if datafile != nil {
		defer datafile.Close()
		seed = datafile
	}

	db, err := database.NewDatabaseConnection(selectConnector(), seed, database.WithCalculator(loadCalculator(os.Getenv("ROADCONDITION_RCI_WEIGHTS"))))
	if err != nil {
		log.Fatalf("Failed to open datastore: %s", err.Error())
	}

	config := bus.LoadConfiguration(serviceName)
	messenger, err := bus.Initialize(config)
	if err != nil {
		log.Fatalf("Failed to initialize messaging: %s", err.Error())
	}
	defer messenger.Close()

	db.RegisterScoreListener(messaging.NewScoreListener(messenger))

	messenger.RegisterTopicMessageHandler((&events.RoadDefectObserved{}).TopicName(), messaging.CreateRoadDefectObservedReceiver(db))

	err = messenger.RegisterCommandHandler(commands.RefreshUrgentSegmentsContentType, messaging.CreateRefreshUrgentSegmentsCommandHandler(db, messenger))
	if err != nil {
		log.Fatalf("Failed to register command handler: %s", err.Error())
	}

	notifyRefresh := func(count int) {
		messaging.PublishUrgentSegmentsRefreshed(messenger, count)
	}

	refresher, err := scheduler.NewUrgentSegmentRefresher(db, os.Getenv("ROADCONDITION_URGENT_REFRESH"), notifyRefresh)
	if err != nil {
		log.Fatal(err.Error())
	}
	refresher.Start()
	defer refresher.Stop()

	go handler.CreateRouterAndStartServing(db, notifyRefresh)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Infof("Shutting down %s.", serviceName)
}
