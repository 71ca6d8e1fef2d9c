package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kwv/pinfloor/floor"
)

const maxBodySize = 4 << 20

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(a *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Uptime    string    `json:"uptime"`
			Surfaces  int       `json:"surfaces"`
			Pins      int       `json:"pins"`
			MQTT      bool      `json:"mqtt"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Uptime:    time.Since(a.started).Round(time.Second).String(),
			Surfaces:  a.Scene.Len(),
			Pins:      len(a.Session.Markers()),
			MQTT:      a.MQTTClient != nil && a.MQTTClient.IsConnected(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("/pins", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, a.Session.Markers())
		case http.MethodPost:
			body, ok := readBody(w, r)
			if !ok {
				return
			}
			req, err := floor.DecodePlaceRequest(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			id, eval := a.handlePlace(req)
			writeJSON(w, http.StatusCreated, struct {
				ID         floor.MarkerID    `json:"id"`
				Evaluation *floor.Evaluation `json:"evaluation,omitempty"`
			}{id, eval})
		case http.MethodDelete:
			a.handleReset()
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, "GET, POST, DELETE")
		}
	})

	mux.HandleFunc("/verdict", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, "GET")
			return
		}
		eval, ok := a.Session.LastEvaluation()
		if !ok {
			http.Error(w, "No verdict yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, eval)
	})

	mux.HandleFunc("/surfaces", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, a.Scene.Surfaces())
		case http.MethodPost:
			body, ok := readBody(w, r)
			if !ok {
				return
			}
			surfaces, err := floor.DecodeSurfaces(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			a.handleSurfaces(surfaces)
			writeJSON(w, http.StatusAccepted, struct {
				Updated int `json:"updated"`
				Total   int `json:"total"`
			}{len(surfaces), a.Scene.Len()})
		case http.MethodDelete:
			id := r.URL.Query().Get("id")
			if id == "" {
				http.Error(w, "missing id", http.StatusBadRequest)
				return
			}
			if _, ok := a.Scene.Surface(floor.SurfaceID(id)); !ok {
				http.Error(w, "Unknown surface", http.StatusNotFound)
				return
			}
			a.handleRemove([]floor.SurfaceID{floor.SurfaceID(id)})
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, "GET, POST, DELETE")
		}
	})

	mux.HandleFunc("/scene.geojson", func(w http.ResponseWriter, r *http.Request) {
		eval, _ := a.Session.LastEvaluation()
		data, err := floor.ExportSceneGeoJSON(a.Scene.Surfaces(), eval)
		if err != nil {
			log.Printf("Error exporting GeoJSON: %v", err)
			http.Error(w, "Failed to export GeoJSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing GeoJSON: %v", err)
		}
	})

	mux.HandleFunc("/debug.svg", func(w http.ResponseWriter, r *http.Request) {
		eval, _ := a.Session.LastEvaluation()
		renderer := floor.NewVectorRenderer(a.Scene.Surfaces(), eval, a.Config.Render)
		renderer.Pins = a.Session.Markers()

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("Error rendering debug SVG: %v", err)
		}
	})

	mux.HandleFunc("/debug.png", func(w http.ResponseWriter, r *http.Request) {
		eval, _ := a.Session.LastEvaluation()
		renderer := floor.NewRasterRenderer(a.Scene.Surfaces(), eval, a.Config.Render)
		renderer.Pins = a.Session.Markers()

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.EncodePNG(w); err != nil {
			log.Printf("Error encoding debug PNG: %v", err)
		}
	})

	return logRequests(mux)
}

// logRequests logs every request the way the service logs everything else
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
