package handler

import (
	"compress/flate"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/database"
	fiwarecontext "github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/fiware/context"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

// RefreshNotifier is told about the size of every urgent segments snapshot refreshed through the api
type RefreshNotifier func(count int)

// RequestRouter wraps the concrete router implementation
type RequestRouter struct {
	impl *chi.Mux
}

func (router *RequestRouter) addNGSIHandlers(contextRegistry ngsi.ContextRegistry) {
	router.Get("/ngsi-ld/v1/entities", ngsi.NewQueryEntitiesHandler(contextRegistry))
	router.Post("/ngsi-ld/v1/entities", ngsi.NewCreateEntityHandler(contextRegistry))
}

func (router *RequestRouter) addAPIHandlers(db database.Datastore, notify RefreshNotifier) {
	router.impl.Route("/api", func(r chi.Router) {
		r.Get("/segments", listSegments(db))
		r.Post("/segments", createSegment(db))
		r.Get("/segments/{id}", getSegment(db))
		r.Delete("/segments/{id}", deleteSegment(db))
		r.Get("/segments/{id}/inspections", listInspections(db))
		r.Get("/segments/{id}/maintenance", listMaintenanceActions(db))
		r.Post("/segments/{id}/maintenance", createMaintenanceAction(db))

		r.Post("/inspectors", createInspector(db))
		r.Get("/inspectors/{id}", getInspector(db))
		r.Delete("/inspectors/{id}", deleteInspector(db))

		r.Post("/inspections", createInspection(db))
		r.Get("/inspections/{id}", getInspection(db))
		r.Delete("/inspections/{id}", deleteInspection(db))
		r.Post("/inspections/{id}/rci", recomputeRCI(db))
		r.Get("/inspections/{id}/defects", listDefects(db))
		r.Post("/inspections/{id}/defects", createDefect(db))

		r.Get("/defects/{id}", getDefect(db))
		r.Put("/defects/{id}", updateDefect(db))
		r.Delete("/defects/{id}", deleteDefect(db))
		r.Get("/defects/{id}/images", listDefectImages(db))
		r.Post("/defects/{id}/images", addDefectImage(db))
		r.Delete("/images/{id}", deleteDefectImage(db))

		r.Patch("/maintenance/{id}", updateMaintenanceStatus(db))

		r.Get("/latest-inspections", listLatestInspections(db))
		r.Get("/urgent-segments", listUrgentSegments(db))
		r.Post("/urgent-segments/refresh", refreshUrgentSegments(db, notify))
	})
}

// Post registers a handler for POST requests on the given pattern
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

// Get registers a handler for GET requests on the given pattern
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

// ServeHTTP lets the router be used directly as an http.Handler
func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	// Enable gzip compression for json and ngsi-ld responses
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json", "application/ld+json")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.Logger)

	return router
}

// CreateRequestRouter creates a router with all api and ngsi-ld handlers registered
func CreateRequestRouter(db database.Datastore, notify RefreshNotifier) *RequestRouter {
	contextRegistry := ngsi.NewContextRegistry()
	contextRegistry.Register(fiwarecontext.CreateSource(db))

	router := newRequestRouter()

	router.addNGSIHandlers(contextRegistry)
	router.addAPIHandlers(db, notify)

	return router
}

// CreateRouterAndStartServing creates a request router, registers all handlers and starts serving requests.
func CreateRouterAndStartServing(db database.Datastore, notify RefreshNotifier) {
	router := CreateRequestRouter(db, notify)

	port := os.Getenv("ROADCONDITION_API_PORT")
	if port == "" {
		port = "8484"
	}

	log.Printf("Starting api-roadcondition on port %s.\n", port)

	log.Fatal(http.ListenAndServe(":"+port, router.impl))
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Errorf("Failed to encode response: %s", err.Error())
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	var verr *database.ValidationError
	var ierr *database.IntegrityViolationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.As(err, &ierr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: ierr.Error()})
	case errors.Is(err, database.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		log.Errorf("Request failed: %s", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func badRequest(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message, Field: field})
}

func idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(w, "id", "id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "body", "unable to decode request body: "+err.Error())
		return false
	}
	return true
}

func listSegments(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		var segments []persistence.Segment
		var err error

		if query.Get("lat") != "" {
			lat, laterr := strconv.ParseFloat(query.Get("lat"), 64)
			lon, lonerr := strconv.ParseFloat(query.Get("lon"), 64)
			distance, disterr := strconv.ParseUint(query.Get("maxDistance"), 10, 64)
			if laterr != nil || lonerr != nil || disterr != nil {
				badRequest(w, "lat", "lat, lon and maxDistance must all be numbers")
				return
			}
			segments, err = db.GetSegmentsNearPoint(r.Context(), lat, lon, distance)
		} else if query.Get("bbox") != "" {
			corners, ok := parseBoundingBox(query.Get("bbox"))
			if !ok {
				badRequest(w, "bbox", "bbox must be four comma separated numbers lat0,lon0,lat1,lon1")
				return
			}
			segments, err = db.GetSegmentsWithinRect(r.Context(), corners[0], corners[1], corners[2], corners[3])
		} else {
			segments, err = db.ListSegments(r.Context())
		}

		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, segments)
	}
}

func parseBoundingBox(bbox string) ([4]float64, bool) {
	corners := [4]float64{}

	parts := strings.Split(bbox, ",")
	if len(parts) != len(corners) {
		return corners, false
	}

	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return corners, false
		}
		corners[i] = value
	}

	return corners, true
}

func createSegment(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		segment := persistence.Segment{}
		if !decodeBody(w, r, &segment) {
			return
		}

		created, err := db.CreateSegment(r.Context(), segment)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func getSegment(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			segment, err := db.GetSegmentByID(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, segment)
		}
	}
}

func deleteSegment(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			if err := db.DeleteSegment(r.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func listInspections(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			inspections, err := db.ListInspectionsForSegment(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, inspections)
		}
	}
}

func listMaintenanceActions(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			actions, err := db.ListMaintenanceActions(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, actions)
		}
	}
}

func createMaintenanceAction(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		action := persistence.MaintenanceAction{}
		if !decodeBody(w, r, &action) {
			return
		}
		action.SegmentID = id

		created, err := db.CreateMaintenanceAction(r.Context(), action)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

type maintenanceStatusUpdate struct {
	Status        persistence.MaintenanceStatus `json:"status"`
	PerformedDate *time.Time                    `json:"performedDate,omitempty"`
}

func updateMaintenanceStatus(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		update := maintenanceStatusUpdate{}
		if !decodeBody(w, r, &update) {
			return
		}

		action, err := db.UpdateMaintenanceStatus(r.Context(), id, update.Status, update.PerformedDate)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, action)
	}
}

func createInspector(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inspector := persistence.Inspector{}
		if !decodeBody(w, r, &inspector) {
			return
		}

		created, err := db.CreateInspector(r.Context(), inspector)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func getInspector(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			inspector, err := db.GetInspectorByID(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, inspector)
		}
	}
}

func deleteInspector(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			if err := db.DeleteInspector(r.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func createInspection(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inspection := persistence.Inspection{}
		if !decodeBody(w, r, &inspection) {
			return
		}

		created, err := db.CreateInspection(r.Context(), inspection)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func getInspection(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			inspection, err := db.GetInspectionByID(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, inspection)
		}
	}
}

func deleteInspection(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			if err := db.DeleteInspection(r.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

type scoreResponse struct {
	InspectionID uint    `json:"inspectionId"`
	RCI          float64 `json:"rci"`
}

func recomputeRCI(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			score, err := db.RecomputeRCI(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, scoreResponse{InspectionID: id, RCI: score})
		}
	}
}

func listDefects(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			defects, err := db.ListDefects(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, defects)
		}
	}
}

func createDefect(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		defect := persistence.Defect{}
		if !decodeBody(w, r, &defect) {
			return
		}
		defect.InspectionID = id

		created, err := db.CreateDefect(r.Context(), defect)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func getDefect(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			defect, err := db.GetDefectByID(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, defect)
		}
	}
}

func updateDefect(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		defect := persistence.Defect{}
		if !decodeBody(w, r, &defect) {
			return
		}

		updated, err := db.UpdateDefect(r.Context(), id, defect)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteDefect(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			if err := db.DeleteDefect(r.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func listDefectImages(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			images, err := db.ListDefectImages(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, images)
		}
	}
}

func addDefectImage(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		image := persistence.DefectImage{}
		if !decodeBody(w, r, &image) {
			return
		}
		image.DefectID = id

		created, err := db.AddDefectImage(r.Context(), image)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func deleteDefectImage(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := idParam(w, r); ok {
			if err := db.DeleteDefectImage(r.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func listLatestInspections(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, err := db.ListLatestInspectionPerSegment(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, latest)
	}
}

func listUrgentSegments(db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		urgent, err := db.ListUrgentSegments(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, urgent)
	}
}

type refreshResponse struct {
	Count int `json:"count"`
}

func refreshUrgentSegments(db database.Datastore, notify RefreshNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := db.RefreshUrgentSegments(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		if notify != nil {
			notify(count)
		}

		writeJSON(w, http.StatusOK, refreshResponse{Count: count})
	}
}
