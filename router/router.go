package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/AsterZephyr/rotascope/config"
	"github.com/AsterZephyr/rotascope/display"
	"github.com/AsterZephyr/rotascope/hub"
	"github.com/AsterZephyr/rotascope/message"
	"github.com/AsterZephyr/rotascope/session"
)

type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Version  string `json:"version"`
}

type Switched struct {
	CurrentDisplay uint8 `json:"current_display"`
}

func Router(conf config.Config, sessions *session.Server, h *hub.Hub, state *display.State, version string) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// https://github.com/gorilla/mux/issues/416
		accessLogger(r, 404, 0, 0)
		w.WriteHeader(http.StatusNotFound)
	})
	router.Use(hlog.AccessHandler(accessLogger))
	router.Use(handlers.CORS(handlers.AllowedMethods([]string{"GET", "POST"}), handlers.AllowedOriginValidator(conf.CheckOrigin)))

	router.HandleFunc("/stream", sessions.Upgrade)
	router.Methods("GET").Path("/health").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Health{Status: "up", Sessions: h.Count(), Version: version})
	})
	router.Methods("GET").Path("/config").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, state.Config())
	})
	router.Methods("POST").Path("/display/{direction}").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var direction message.Direction
		switch mux.Vars(r)["direction"] {
		case "next":
			direction = message.Next
		case "previous":
			direction = message.Previous
		default:
			writeJSON(w, http.StatusBadRequest, message.Error{Message: "direction must be next or previous"})
			return
		}
		writeJSON(w, http.StatusOK, Switched{CurrentDisplay: state.Switch(direction)})
	})
	if conf.Prometheus {
		log.Info().Msg("Prometheus enabled")
		router.Methods("GET").Path("/metrics").Handler(promhttp.Handler())
	}

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func accessLogger(r *http.Request, status, size int, dur time.Duration) {
	log.Debug().
		Str("host", r.Host).
		Int("status", status).
		Int("size", size).
		Str("ip", r.RemoteAddr).
		Str("path", r.URL.Path).
		Str("duration", dur.String()).
		Msg("HTTP")
}
