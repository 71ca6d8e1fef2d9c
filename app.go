package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang/geo/r3"
	"github.com/kwv/pinfloor/floor"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *floor.Config
	Scene      *floor.Scene
	Session    *floor.Session
	MQTTClient *floor.MQTTClient
	Publisher  *floor.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	SceneFile    string
	Pins         []r3.Vector
	OutputFile   string
	GeoJSONFile  string
	RenderFormat string
	VectorFormat string
	GridSpacing  float64
	HttpPort     int
	MqttMode     bool
	HttpMode     bool

	out     io.Writer
	saveMu  sync.Mutex
	started time.Time
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Scene: floor.NewScene(),
		out:   os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.SceneFile = opts.SceneFile
	a.Pins = opts.Pins
	a.OutputFile = opts.OutputFile
	a.GeoJSONFile = opts.GeoJSONFile
	a.RenderFormat = opts.RenderFormat
	a.VectorFormat = opts.VectorFormat
	a.GridSpacing = opts.GridSpacing
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file, falling back to defaults when it does not exist
func (a *App) loadConfig() error {
	if a.ConfigFile == "" {
		a.Config = floor.DefaultConfig()
		return nil
	}
	config, err := floor.LoadConfig(a.ConfigFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("Config %s not found, using defaults", a.ConfigFile)
			a.Config = floor.DefaultConfig()
			return nil
		}
		return fmt.Errorf("load config %s: %w", a.ConfigFile, err)
	}
	log.Printf("Loaded config from %s", a.ConfigFile)
	a.Config = config
	return nil
}

// scenePath returns the scene snapshot path from the flag or config
func (a *App) scenePath() string {
	if a.SceneFile != "" {
		return a.SceneFile
	}
	if a.Config != nil {
		return a.Config.SceneFile
	}
	return ""
}

// loadScene loads the scene snapshot from disk or a perception endpoint. A missing
// local snapshot is an error only when required.
func (a *App) loadScene(required bool) error {
	path := a.scenePath()
	if path == "" {
		if required {
			return fmt.Errorf("no scene file given (use --scene or sceneFile in config)")
		}
		return nil
	}
	var (
		scene *floor.Scene
		err   error
	)
	if floor.IsRemoteScene(path) {
		scene, err = floor.FetchScene(context.Background(), path)
	} else {
		scene, err = floor.LoadScene(path)
	}
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			log.Printf("Scene %s not found, starting with an empty scene", path)
			return nil
		}
		return err
	}
	log.Printf("Loaded %d surfaces from %s", scene.Len(), path)
	a.Scene = scene
	return nil
}

// setup loads config and scene and creates the session
func (a *App) setup(sceneRequired bool) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := a.loadScene(sceneRequired); err != nil {
		return err
	}
	a.Session = floor.NewSession(a.Scene, a.Config.Evaluation)
	return nil
}

// placeCLIPins places the --pin positions in order and returns the final evaluation
func (a *App) placeCLIPins() *floor.Evaluation {
	var eval *floor.Evaluation
	for _, p := range a.Pins {
		if _, e := a.Session.Place(p); e != nil {
			eval = e
		}
	}
	return eval
}

// RunEvaluate evaluates the command line pins against the scene snapshot
func (a *App) RunEvaluate() {
	if err := a.evaluate(); err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
}

func (a *App) evaluate() error {
	if len(a.Pins) < floor.PinCapacity {
		return fmt.Errorf("need %d pins, got %d", floor.PinCapacity, len(a.Pins))
	}
	if err := a.setup(true); err != nil {
		return err
	}

	eval := a.placeCLIPins()
	v := eval.Verdict
	fmt.Fprintf(a.out, "\nVerdict: %s\n", v.Kind)
	fmt.Fprintf(a.out, "  %s\n", v.Message())
	fmt.Fprintf(a.out, "  same floor: %t\n", v.SameFloor())
	fmt.Fprintf(a.out, "  projections: %d / %d\n", v.ProjectionsA, v.ProjectionsB)
	if v.Surface != "" {
		fmt.Fprintf(a.out, "  surface: %s\n", v.Surface)
	}
	for _, p := range eval.Pins {
		pos := p.Position()
		fmt.Fprintf(a.out, "  pin %d %s at (%.2f, %.2f, %.2f): %s\n",
			p.Index, p.ID, pos.X, pos.Y, pos.Z, p.State)
	}
	return nil
}

// RunRender renders the scene, and the evaluation of any --pin flags, to disk
func (a *App) RunRender() {
	if err := a.render(); err != nil {
		log.Fatalf("Render failed: %v", err)
	}
}

func (a *App) render() error {
	if err := a.setup(true); err != nil {
		return err
	}
	eval := a.placeCLIPins()
	pins := a.Session.Markers()
	surfaces := a.Scene.Surfaces()

	renderCfg := a.Config.Render
	if a.GridSpacing > 0 {
		renderCfg.GridSpacing = a.GridSpacing
	}

	output := a.OutputFile
	if output == "" {
		output = "floor-debug.png"
	}

	if a.RenderFormat == "" || a.RenderFormat == "raster" || a.RenderFormat == "both" {
		r := floor.NewRasterRenderer(surfaces, eval, renderCfg)
		r.Pins = pins
		if err := r.SavePNG(output); err != nil {
			return fmt.Errorf("save raster: %w", err)
		}
		fmt.Fprintf(a.out, "Saved raster debug view to %s\n", output)
	}

	if a.RenderFormat == "vector" || a.RenderFormat == "both" {
		ext := "." + a.VectorFormat
		if a.VectorFormat == "" {
			ext = ".svg"
		}
		path := output
		if filepath.Ext(path) != ext {
			path = strings.TrimSuffix(output, filepath.Ext(output)) + ext
		}
		if a.RenderFormat == "both" && path == output {
			path = strings.TrimSuffix(output, ext) + "-vector" + ext
		}

		r := floor.NewVectorRenderer(surfaces, eval, renderCfg)
		r.Pins = pins
		if err := writeFile(path, func(w io.Writer) error {
			if ext == ".png" {
				return r.RenderToPNG(w)
			}
			return r.RenderToSVG(w)
		}); err != nil {
			return fmt.Errorf("save vector: %w", err)
		}
		fmt.Fprintf(a.out, "Saved vector debug view to %s\n", path)
	}

	if a.GeoJSONFile != "" {
		data, err := floor.ExportSceneGeoJSON(surfaces, eval)
		if err != nil {
			return err
		}
		if err := os.WriteFile(a.GeoJSONFile, data, 0o644); err != nil {
			return fmt.Errorf("write GeoJSON: %w", err)
		}
		fmt.Fprintf(a.out, "Saved GeoJSON to %s\n", a.GeoJSONFile)
	}

	if eval != nil {
		fmt.Fprintf(a.out, "Verdict: %s (%s)\n", eval.Verdict.Kind, eval.Verdict.Message())
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// handleSurfaces merges perception updates into the scene
func (a *App) handleSurfaces(surfaces []floor.Surface) {
	for _, s := range surfaces {
		a.Scene.Upsert(s)
	}
	log.Printf("Scene updated: %d surfaces received, %d total", len(surfaces), a.Scene.Len())
	a.sceneChanged()
}

// handleRemove drops surfaces perception no longer tracks
func (a *App) handleRemove(ids []floor.SurfaceID) {
	removed := 0
	for _, id := range ids {
		if a.Scene.Remove(id) {
			removed++
		}
	}
	log.Printf("Scene updated: %d of %d surfaces removed", removed, len(ids))
	if removed > 0 {
		a.sceneChanged()
	}
}

// sceneChanged re-runs the evaluation for the current pair and persists the scene
func (a *App) sceneChanged() {
	a.Session.Reevaluate()

	path := a.scenePath()
	if path == "" || floor.IsRemoteScene(path) {
		return
	}
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	if err := floor.SaveScene(a.Scene, path); err != nil {
		log.Printf("Error saving scene to %s: %v", path, err)
	}
}

// handlePlace places a pin from a world position or camera transform
func (a *App) handlePlace(req floor.PlaceRequest) (floor.MarkerID, *floor.Evaluation) {
	var (
		id   floor.MarkerID
		eval *floor.Evaluation
	)
	if req.Camera != nil {
		id, eval = a.Session.PlaceRelative(*req.Camera)
	} else {
		id, eval = a.Session.Place(req.Position())
	}
	log.Printf("Placed pin %s", id)

	// Completed pairs are published by the verdict handler
	if eval == nil && a.Publisher != nil {
		if err := a.Publisher.PublishPins(a.Session.Markers()); err != nil {
			log.Printf("Error publishing pins: %v", err)
		}
	}
	return id, eval
}

// handleReset clears all pins and the retained verdict
func (a *App) handleReset() {
	a.Session.Reset()
	log.Println("Pins reset")
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.ClearVerdict(); err != nil {
		log.Printf("Error clearing verdict: %v", err)
	}
	if err := a.Publisher.PublishPins(nil); err != nil {
		log.Printf("Error publishing pins: %v", err)
	}
}

// publishEvaluation is registered as the session verdict handler
func (a *App) publishEvaluation(eval floor.Evaluation) {
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.PublishEvaluation(eval); err != nil {
		log.Printf("Error publishing verdict: %v", err)
	}
}

// messageHandlers routes MQTT messages into the app
func (a *App) messageHandlers() floor.MessageHandlers {
	return floor.MessageHandlers{
		OnSurfaces: a.handleSurfaces,
		OnRemove:   a.handleRemove,
		OnPlace: func(req floor.PlaceRequest) {
			a.handlePlace(req)
		},
		OnReset: a.handleReset,
	}
}

// startService wires MQTT and HTTP. The returned server is nil when HTTP is disabled.
func (a *App) startService() (*http.Server, error) {
	if err := a.setup(false); err != nil {
		return nil, err
	}
	a.started = time.Now()
	a.Session.OnVerdict(a.publishEvaluation)

	if a.MqttMode {
		mqttClient, err := floor.InitMQTT(a.Config, a.messageHandlers())
		if err != nil {
			return nil, fmt.Errorf("initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return nil, fmt.Errorf("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient
		a.Publisher = floor.NewPublisher(mqttClient.GetClient(), a.Config.MQTT.PublishPrefix)
		fmt.Fprintln(a.out, "MQTT verdict publisher initialized")
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}
	return server, nil
}

// RunService runs MQTT and/or HTTP until interrupted
func (a *App) RunService() {
	fmt.Fprintln(a.out, "Starting pinfloor service...")

	server, err := a.startService()
	if err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}
	a.printServiceInfo()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.out, "\nShutting down service...")
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
		cancel()
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.out, "Service stopped")
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")

	if a.MqttMode {
		fmt.Fprintln(a.out, "\nMQTT:")
		fmt.Fprintln(a.out, "  Subscribed topics:")
		for _, topic := range a.Config.SubscribedTopics() {
			fmt.Fprintf(a.out, "    - %s\n", topic)
		}
		if a.Publisher != nil {
			fmt.Fprintf(a.out, "  Verdict: %s\n", a.Publisher.VerdictTopic())
			fmt.Fprintf(a.out, "  Pins: %s\n", a.Publisher.PinsTopic())
		}
		if a.MQTTClient != nil {
			fmt.Fprintf(a.out, "  Status: %s\n", a.MQTTClient.StatusTopic())
		}
	}

	if a.HttpMode {
		fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.out, "  GET /health                - Health check")
		fmt.Fprintln(a.out, "  GET|POST|DELETE /pins      - List, place or reset pins")
		fmt.Fprintln(a.out, "  GET /verdict               - Last evaluation")
		fmt.Fprintln(a.out, "  GET|POST|DELETE /surfaces  - Scene surfaces")
		fmt.Fprintln(a.out, "  GET /scene.geojson         - Scene and evaluation as GeoJSON")
		fmt.Fprintln(a.out, "  GET /debug.svg, /debug.png - Debug plan view")
	}

	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")
}
