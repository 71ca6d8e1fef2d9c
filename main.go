package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile   string
	SceneFile    string
	Pins         []r3.Vector
	EvaluateOnly bool
	RenderOnly   bool
	RenderFormat string
	VectorFormat string
	OutputFile   string
	GeoJSONFile  string
	GridSpacing  float64
	MqttMode     bool
	HttpMode     bool
	HttpPort     int
}

// Runner is implemented by App; tests substitute a mock
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunEvaluate()
	RunRender()
	RunService()
}

// pinList collects repeated --pin x,y,z flags
type pinList []r3.Vector

func (p *pinList) String() string {
	parts := make([]string, len(*p))
	for i, v := range *p {
		parts[i] = fmt.Sprintf("%g,%g,%g", v.X, v.Y, v.Z)
	}
	return strings.Join(parts, " ")
}

func (p *pinList) Set(value string) error {
	v, err := parsePin(value)
	if err != nil {
		return err
	}
	*p = append(*p, v)
	return nil
}

// parsePin parses "x,y,z" in meters
func parsePin(value string) (r3.Vector, error) {
	fields := strings.Split(value, ",")
	if len(fields) != 3 {
		return r3.Vector{}, fmt.Errorf("pin %q must be x,y,z", value)
	}
	var coords [3]float64
	for i, f := range fields {
		c, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return r3.Vector{}, fmt.Errorf("pin %q: %w", value, err)
		}
		coords[i] = c
	}
	return r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("pinfloor", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		opts AppOptions
		pins pinList
	)
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.SceneFile, "scene", "", "Scene snapshot JSON (overrides sceneFile in config)")
	fs.Var(&pins, "pin", "Pin position x,y,z in meters (repeatable)")
	fs.BoolVar(&opts.EvaluateOnly, "evaluate", false, "Evaluate the given pins against the scene and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the scene and pins and exit")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster, vector or both")
	fs.StringVar(&opts.VectorFormat, "vector-format", "svg", "Vector output: svg or png")
	fs.StringVar(&opts.OutputFile, "output", "floor-debug.png", "Output file for --render mode")
	fs.StringVar(&opts.GeoJSONFile, "geojson", "", "Also write the scene as GeoJSON to this file")
	fs.Float64Var(&opts.GridSpacing, "grid-spacing", 0, "Grid spacing in meters for vector output (0 uses config)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable the HTTP API")
	fs.IntVar(&opts.HttpPort, "http-port", 4040, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}
	opts.Pins = pins

	switch opts.RenderFormat {
	case "raster", "vector", "both":
	default:
		return fmt.Errorf("unknown --format %q", opts.RenderFormat)
	}
	switch opts.VectorFormat {
	case "svg", "png":
	default:
		return fmt.Errorf("unknown --vector-format %q", opts.VectorFormat)
	}

	fmt.Fprintf(out, "pinfloor version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.EvaluateOnly:
		app.RunEvaluate()
	case opts.RenderOnly:
		app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
	default:
		fmt.Fprintln(out, "pinfloor service starting...")
		fmt.Fprintln(out, "Use --evaluate --scene FILE --pin x,y,z --pin x,y,z to evaluate two pins")
		fmt.Fprintln(out, "Use --render to output a debug image of the scene")
		fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
		fmt.Fprintln(out, "Use --http to run the HTTP API")
		fmt.Fprintln(out, "Use --mqtt --http to run both together")
		fmt.Fprintln(out, "\nConfiguration:")
		fmt.Fprintln(out, "  config.yaml - MQTT settings, topics and evaluation constants")
	}
	return nil
}
