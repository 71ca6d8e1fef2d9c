package main

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/pinfloor/floor"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func serve(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// /health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	app, _, _ := serviceApp(t, wallScene())
	app.handlePlace(floor.PlaceRequest{Y: 1})
	handler := newHTTPServer(app)

	w := serve(t, handler, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Status   string `json:"status"`
		Surfaces int    `json:"surfaces"`
		Pins     int    `json:"pins"`
		MQTT     bool   `json:"mqtt"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Surfaces != 2 || body.Pins != 1 {
		t.Errorf("surfaces=%d pins=%d, want 2 and 1", body.Surfaces, body.Pins)
	}
	if body.MQTT {
		t.Error("mqtt = true without an MQTT client")
	}
}

// ---------------------------------------------------------------------------
// /pins and /verdict
// ---------------------------------------------------------------------------

func TestPins_PlaceAndEvaluate(t *testing.T) {
	app, _, _ := serviceApp(t, wallScene())
	handler := newHTTPServer(app)

	w := serve(t, handler, http.MethodGet, "/verdict", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "no verdict before two pins")

	w = serve(t, handler, http.MethodPost, "/pins", `{"x": 0, "y": 1, "z": 0}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var first struct {
		ID         floor.MarkerID    `json:"id"`
		Evaluation *floor.Evaluation `json:"evaluation"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&first))
	assert.NotEmpty(t, first.ID)
	assert.Nil(t, first.Evaluation)

	w = serve(t, handler, http.MethodPost, "/pins", `{"x": 1, "y": 1, "z": 0}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var second struct {
		Evaluation *floor.Evaluation `json:"evaluation"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&second))
	require.NotNil(t, second.Evaluation)
	assert.Equal(t, floor.VerdictCrossedWall, second.Evaluation.Verdict.Kind)

	w = serve(t, handler, http.MethodGet, "/pins", "")
	require.Equal(t, http.StatusOK, w.Code)
	var pins []floor.Marker
	require.NoError(t, json.NewDecoder(w.Body).Decode(&pins))
	require.Len(t, pins, 2)
	assert.Equal(t, first.ID, pins[0].ID)

	w = serve(t, handler, http.MethodGet, "/verdict", "")
	require.Equal(t, http.StatusOK, w.Code)
	var eval floor.Evaluation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&eval))
	assert.Equal(t, floor.VerdictCrossedWall, eval.Verdict.Kind)
}

func TestPins_Reset(t *testing.T) {
	app, mock, _ := serviceApp(t, wallScene())
	handler := newHTTPServer(app)
	serve(t, handler, http.MethodPost, "/pins", `{"y": 1}`)
	serve(t, handler, http.MethodPost, "/pins", `{"x": 0.3, "y": 1}`)

	w := serve(t, handler, http.MethodDelete, "/pins", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, app.Session.Markers())

	_, retained := mock.Retained("pinfloor/verdict")
	assert.False(t, retained)

	w = serve(t, handler, http.MethodGet, "/verdict", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPins_BadRequests(t *testing.T) {
	app, _, _ := serviceApp(t, wallScene())
	handler := newHTTPServer(app)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty pin", http.MethodPost, "/pins", "", http.StatusBadRequest},
		{"malformed pin", http.MethodPost, "/pins", "{", http.StatusBadRequest},
		{"pins PUT", http.MethodPut, "/pins", "", http.StatusMethodNotAllowed},
		{"verdict POST", http.MethodPost, "/verdict", "", http.StatusMethodNotAllowed},
		{"malformed surfaces", http.MethodPost, "/surfaces", "not json", http.StatusBadRequest},
		{"surface without transform", http.MethodPost, "/surfaces", `{"id": "f", "alignment": "horizontal"}`, http.StatusBadRequest},
		{"surfaces delete without id", http.MethodDelete, "/surfaces", "", http.StatusBadRequest},
		{"surfaces delete unknown", http.MethodDelete, "/surfaces?id=nope", "", http.StatusNotFound},
		{"surfaces PATCH", http.MethodPatch, "/surfaces", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, handler, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
	assert.Empty(t, app.Session.Markers(), "rejected requests must not place pins")
	_, ok := app.Scene.Surface("f")
	assert.False(t, ok, "rejected surfaces must not reach the scene")
}

// ---------------------------------------------------------------------------
// /surfaces
// ---------------------------------------------------------------------------

func TestSurfaces_UpsertAndRemove(t *testing.T) {
	scene := floor.NewScene()
	app, _, _ := serviceApp(t, scene)
	handler := newHTTPServer(app)

	body := `{"surfaces": [
		{"id": "floor", "alignment": "horizontal", "transform": [[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]],
		 "extent": {"width": 10, "depth": 10}}
	]}`
	w := serve(t, handler, http.MethodPost, "/surfaces", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, 1, app.Scene.Len())

	w = serve(t, handler, http.MethodGet, "/surfaces", "")
	require.Equal(t, http.StatusOK, w.Code)
	var surfaces []floor.Surface
	require.NoError(t, json.NewDecoder(w.Body).Decode(&surfaces))
	require.Len(t, surfaces, 1)
	assert.Equal(t, floor.SurfaceID("floor"), surfaces[0].ID)

	w = serve(t, handler, http.MethodDelete, "/surfaces?id=floor", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, app.Scene.Len())
}

// ---------------------------------------------------------------------------
// debug views
// ---------------------------------------------------------------------------

func TestSceneGeoJSON(t *testing.T) {
	app, _, _ := serviceApp(t, wallScene())
	handler := newHTTPServer(app)
	serve(t, handler, http.MethodPost, "/pins", `{"y": 1}`)
	serve(t, handler, http.MethodPost, "/pins", `{"x": 1, "y": 1}`)

	w := serve(t, handler, http.MethodGet, "/scene.geojson", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	require.NoError(t, err)
	assert.NotEmpty(t, fc.Features)
	assert.Equal(t, "different-floor-crossed-wall", fc.ExtraMembers["verdict"])
}

func TestDebugViews(t *testing.T) {
	app, _, _ := serviceApp(t, wallScene())
	handler := newHTTPServer(app)
	serve(t, handler, http.MethodPost, "/pins", `{"y": 1}`)

	w := serve(t, handler, http.MethodGet, "/debug.svg", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<svg")

	w = serve(t, handler, http.MethodGet, "/debug.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(w.Body)
	assert.NoError(t, err)
}

func TestDebugViews_EmptyScene(t *testing.T) {
	app, _, _ := serviceApp(t, floor.NewScene())
	handler := newHTTPServer(app)

	for _, path := range []string{"/debug.svg", "/debug.png", "/scene.geojson"} {
		t.Run(path, func(t *testing.T) {
			w := serve(t, handler, http.MethodGet, path, "")
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
