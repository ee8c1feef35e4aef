package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"checkin.engine/internal/api/handler"
)

// NewRouter sets up the gorilla/mux router and defines all API routes.
func NewRouter(service handler.AttendanceService) *mux.Router {

	attendanceHandler := handler.AttendanceHandler{
		Service: service,
	}

	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/attendance/check-in", attendanceHandler.CheckIn).Methods(http.MethodPost)
	api.HandleFunc("/attendance/check-out", attendanceHandler.CheckOut).Methods(http.MethodPost)
	api.HandleFunc("/face/live-detect", attendanceHandler.LiveDetect).Methods(http.MethodPost)
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is operational."))
	}).Methods(http.MethodGet)

	return r
}
