package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/kwv/pinfloor/floor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// wallScene is a 10x10 m floor split by a wall along x = 0.5
func wallScene() *floor.Scene {
	scene := floor.NewScene()
	scene.Upsert(floor.NewHorizontalSurface("floor", r3.Vector{}, 10, 10))
	scene.Upsert(floor.NewVerticalSurface("wall", r3.Vector{X: 0.5, Z: -5}, r3.Vector{X: 0.5, Z: 5}, 3))
	return scene
}

// writeScene saves scene to a temp file and returns its path
func writeScene(t *testing.T, scene *floor.Scene) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.json")
	require.NoError(t, floor.SaveScene(scene, path))
	return path
}

// serviceApp returns an App wired like RunService, publishing to a connected mock broker
func serviceApp(t *testing.T, scene *floor.Scene) (*App, *floor.MockClient, *bytes.Buffer) {
	t.Helper()
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	var out bytes.Buffer
	mock := floor.NewMockClient()
	mock.SetConnected(true)

	app := NewApp()
	app.out = &out
	app.Config = floor.DefaultConfig()
	app.Scene = scene
	app.Session = floor.NewSession(scene, app.Config.Evaluation)
	app.Publisher = floor.NewPublisher(mock, app.Config.MQTT.PublishPrefix)
	app.Session.OnVerdict(app.publishEvaluation)
	return app, mock, &out
}

func publishedTopics(mock *floor.MockClient) []string {
	var topics []string
	for _, p := range mock.Published() {
		topics = append(topics, p.Topic)
	}
	return topics
}

// ---------------------------------------------------------------------------
// options and setup
// ---------------------------------------------------------------------------

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
	}
	if app.Scene == nil {
		t.Error("Scene should be initialized")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile:   "test-config.yaml",
		SceneFile:    "scene.json",
		Pins:         []r3.Vector{{X: 1}, {Z: 2}},
		OutputFile:   "out.png",
		GeoJSONFile:  "out.geojson",
		RenderFormat: "both",
		VectorFormat: "png",
		GridSpacing:  0.25,
		HttpPort:     9000,
		MqttMode:     true,
		HttpMode:     true,
	}
	app.ApplyOptions(opts)

	if app.ConfigFile != opts.ConfigFile {
		t.Errorf("ConfigFile = %s, want %s", app.ConfigFile, opts.ConfigFile)
	}
	if app.SceneFile != opts.SceneFile {
		t.Errorf("SceneFile = %s, want %s", app.SceneFile, opts.SceneFile)
	}
	if len(app.Pins) != 2 || app.Pins[1] != (r3.Vector{Z: 2}) {
		t.Errorf("Pins = %v", app.Pins)
	}
	if app.OutputFile != opts.OutputFile || app.GeoJSONFile != opts.GeoJSONFile {
		t.Errorf("outputs = %s, %s", app.OutputFile, app.GeoJSONFile)
	}
	if app.RenderFormat != "both" || app.VectorFormat != "png" {
		t.Errorf("formats = %s, %s", app.RenderFormat, app.VectorFormat)
	}
	if app.GridSpacing != 0.25 {
		t.Errorf("GridSpacing = %f, want 0.25", app.GridSpacing)
	}
	if app.HttpPort != 9000 || !app.MqttMode || !app.HttpMode {
		t.Errorf("service options not applied: port=%d mqtt=%t http=%t", app.HttpPort, app.MqttMode, app.HttpMode)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	app := NewApp()
	app.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")

	require.NoError(t, app.loadConfig())
	assert.Equal(t, floor.DefaultFarThreshold, app.Config.Evaluation.FarThreshold)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt: [not a map"), 0o644))

	app := NewApp()
	app.ConfigFile = path
	assert.Error(t, app.loadConfig())
}

func TestLoadConfig_SceneFileFromConfig(t *testing.T) {
	scenePath := writeScene(t, wallScene())
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("sceneFile: "+scenePath+"\n"), 0o644))

	app := NewApp()
	app.ConfigFile = configPath
	require.NoError(t, app.setup(true))
	assert.Equal(t, 2, app.Scene.Len())
}

func TestSetup_SceneOptionalForService(t *testing.T) {
	app := NewApp()
	app.ConfigFile = ""
	app.SceneFile = filepath.Join(t.TempDir(), "not-yet.json")

	require.NoError(t, app.setup(false))
	assert.Equal(t, 0, app.Scene.Len())
	assert.NotNil(t, app.Session)

	assert.Error(t, app.setup(true), "a missing scene is fatal for one-shot modes")
}

// ---------------------------------------------------------------------------
// RunEvaluate
// ---------------------------------------------------------------------------

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		pins    []r3.Vector
		want    floor.VerdictKind
		message string
	}{
		{"same side", []r3.Vector{{Y: 1}, {X: 0.3, Y: 1}}, floor.VerdictSameFloor, "same-floor"},
		{"across wall", []r3.Vector{{Y: 1}, {X: 1, Y: 1}}, floor.VerdictCrossedWall, "Hit wall"},
		{"too far", []r3.Vector{{Y: 1, Z: -3}, {Y: 1, Z: 3}}, floor.VerdictTooFar, "Too far apart"},
		{"last two of three", []r3.Vector{{X: 1, Y: 1}, {Y: 1}, {X: 0.3, Y: 1}}, floor.VerdictSameFloor, "same-floor"},
	}

	scenePath := writeScene(t, wallScene())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			app := NewApp()
			app.out = &out
			app.ApplyOptions(AppOptions{SceneFile: scenePath, Pins: tt.pins})

			require.NoError(t, app.evaluate())

			eval, ok := app.Session.LastEvaluation()
			require.True(t, ok)
			assert.Equal(t, tt.want, eval.Verdict.Kind)
			assert.Contains(t, out.String(), "Verdict: "+tt.want.String())
			assert.Contains(t, out.String(), tt.message)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	app := NewApp()
	app.out = &bytes.Buffer{}
	app.ApplyOptions(AppOptions{Pins: []r3.Vector{{Y: 1}}})
	err := app.evaluate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need 2 pins")

	app.ApplyOptions(AppOptions{Pins: []r3.Vector{{Y: 1}, {Y: 1}}})
	err = app.evaluate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scene file")
}

// ---------------------------------------------------------------------------
// RunRender
// ---------------------------------------------------------------------------

func TestRender_Formats(t *testing.T) {
	scenePath := writeScene(t, wallScene())
	pins := []r3.Vector{{Y: 1}, {X: 1, Y: 1}}

	tests := []struct {
		name         string
		format       string
		vectorFormat string
		output       string
		wantFiles    []string
	}{
		{"raster", "raster", "svg", "debug.png", []string{"debug.png"}},
		{"vector svg", "vector", "svg", "debug.png", []string{"debug.svg"}},
		{"vector png", "vector", "png", "debug.png", []string{"debug.png"}},
		{"both svg", "both", "svg", "debug.png", []string{"debug.png", "debug.svg"}},
		{"both png", "both", "png", "debug.png", []string{"debug.png", "debug-vector.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var out bytes.Buffer
			app := NewApp()
			app.out = &out
			app.ApplyOptions(AppOptions{
				SceneFile:    scenePath,
				Pins:         pins,
				OutputFile:   filepath.Join(dir, tt.output),
				RenderFormat: tt.format,
				VectorFormat: tt.vectorFormat,
			})

			require.NoError(t, app.render())

			for _, name := range tt.wantFiles {
				info, err := os.Stat(filepath.Join(dir, name))
				require.NoError(t, err, "expected %s", name)
				assert.Greater(t, info.Size(), int64(0))
			}
			assert.Contains(t, out.String(), "Verdict: different-floor-crossed-wall")
		})
	}
}

func TestRender_GeoJSON(t *testing.T) {
	dir := t.TempDir()
	app := NewApp()
	app.out = &bytes.Buffer{}
	app.ApplyOptions(AppOptions{
		SceneFile:    writeScene(t, wallScene()),
		Pins:         []r3.Vector{{Y: 1}},
		OutputFile:   filepath.Join(dir, "debug.png"),
		GeoJSONFile:  filepath.Join(dir, "scene.geojson"),
		RenderFormat: "raster",
	})

	require.NoError(t, app.render())

	data, err := os.ReadFile(filepath.Join(dir, "scene.geojson"))
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "FeatureCollection", raw["type"])
	assert.Nil(t, raw["verdict"], "a single pin has no verdict")
}

// ---------------------------------------------------------------------------
// service handlers
// ---------------------------------------------------------------------------

func TestHandlePlace_PublishesPinsThenVerdict(t *testing.T) {
	app, mock, _ := serviceApp(t, wallScene())

	id, eval := app.handlePlace(floor.PlaceRequest{Y: 1})
	assert.NotEmpty(t, id)
	assert.Nil(t, eval)
	assert.Equal(t, []string{"pinfloor/pins"}, publishedTopics(mock))

	_, eval = app.handlePlace(floor.PlaceRequest{X: 1, Y: 1})
	require.NotNil(t, eval)
	assert.Equal(t, []string{"pinfloor/pins", "pinfloor/verdict", "pinfloor/pins"}, publishedTopics(mock))

	payload, ok := mock.Retained("pinfloor/verdict")
	require.True(t, ok)
	var msg floor.VerdictMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, floor.VerdictCrossedWall, msg.Verdict)
	assert.False(t, msg.SameFloor)
}

func TestHandlePlace_Camera(t *testing.T) {
	app, _, _ := serviceApp(t, wallScene())
	camera := floor.Translation(r3.Vector{Y: 1.5, Z: 1})

	id, _ := app.handlePlace(floor.PlaceRequest{Camera: &camera})

	markers := app.Session.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, id, markers[0].ID)
	assert.InDelta(t, 1-floor.DefaultPlacementDistance, markers[0].Position().Z, 1e-9)
}

func TestHandleSurfaces_Reevaluates(t *testing.T) {
	scene := floor.NewScene()
	scene.Upsert(floor.NewHorizontalSurface("floor", r3.Vector{}, 10, 10))
	app, mock, _ := serviceApp(t, scene)
	app.SceneFile = filepath.Join(t.TempDir(), "scene.json")

	app.handlePlace(floor.PlaceRequest{Y: 1})
	_, eval := app.handlePlace(floor.PlaceRequest{X: 1, Y: 1})
	require.NotNil(t, eval)
	assert.Equal(t, floor.VerdictSameFloor, eval.Verdict.Kind)

	app.handleSurfaces([]floor.Surface{
		floor.NewVerticalSurface("wall", r3.Vector{X: 0.5, Z: -5}, r3.Vector{X: 0.5, Z: 5}, 3),
	})

	last, ok := app.Session.LastEvaluation()
	require.True(t, ok)
	assert.Equal(t, floor.VerdictCrossedWall, last.Verdict.Kind)

	payload, _ := mock.Retained("pinfloor/verdict")
	assert.Contains(t, string(payload), "different-floor-crossed-wall")

	saved, err := floor.LoadScene(app.SceneFile)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len(), "scene changes are persisted")
}

func TestHandleRemove(t *testing.T) {
	app, _, _ := serviceApp(t, wallScene())
	app.handlePlace(floor.PlaceRequest{Y: 1})
	app.handlePlace(floor.PlaceRequest{X: 1, Y: 1})

	app.handleRemove([]floor.SurfaceID{"wall", "unknown"})

	assert.Equal(t, 1, app.Scene.Len())
	last, ok := app.Session.LastEvaluation()
	require.True(t, ok)
	assert.Equal(t, floor.VerdictSameFloor, last.Verdict.Kind)
}

func TestHandleReset_ClearsRetainedVerdict(t *testing.T) {
	app, mock, _ := serviceApp(t, wallScene())
	app.handlePlace(floor.PlaceRequest{Y: 1})
	app.handlePlace(floor.PlaceRequest{X: 1, Y: 1})
	_, ok := mock.Retained("pinfloor/verdict")
	require.True(t, ok)

	app.handleReset()

	_, ok = mock.Retained("pinfloor/verdict")
	assert.False(t, ok)
	assert.Empty(t, app.Session.Markers())

	pins, ok := mock.Retained("pinfloor/pins")
	require.True(t, ok)
	assert.True(t, strings.Contains(string(pins), `"pins":[]`) || strings.Contains(string(pins), `"pins":null`))
}

func TestHandlers_WithoutPublisher(t *testing.T) {
	app, _, _ := serviceApp(t, wallScene())
	app.Publisher = nil

	assert.NotPanics(t, func() {
		h := app.messageHandlers()
		h.OnPlace(floor.PlaceRequest{Y: 1})
		h.OnPlace(floor.PlaceRequest{X: 1, Y: 1})
		h.OnSurfaces(nil)
		h.OnRemove([]floor.SurfaceID{"wall"})
		h.OnReset()
	})
}

func TestPrintServiceInfo(t *testing.T) {
	app, _, out := serviceApp(t, wallScene())
	app.MqttMode = true
	app.HttpMode = true
	app.HttpPort = 4040

	app.printServiceInfo()

	for _, want := range []string{"pinfloor/surfaces", "pinfloor/pins/place", "pinfloor/verdict", "port 4040", "/debug.svg"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestLoadScene_Remote(t *testing.T) {
	scene := wallScene()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"surfaces": scene.Surfaces()})
	}))
	defer srv.Close()

	var out bytes.Buffer
	app := NewApp()
	app.out = &out
	app.ApplyOptions(AppOptions{SceneFile: srv.URL, Pins: []r3.Vector{{Y: 1}, {X: 1, Y: 1}}})

	require.NoError(t, app.evaluate())
	assert.Equal(t, 2, app.Scene.Len())
	assert.Contains(t, out.String(), "different-floor-crossed-wall")

	// Remote scenes are never written back
	app.sceneChanged()
}
