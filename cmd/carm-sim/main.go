// Command carm-sim places a virtual C-arm around a scan volume, prints the
// derived geometry, camera and exported parameters, and optionally posts
// the parameters to a render session.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/carm/internal/carm"
	"github.com/banshee-data/carm/internal/config"
	"github.com/banshee-data/carm/internal/export"
	"github.com/banshee-data/carm/internal/httputil"
	"github.com/banshee-data/carm/internal/sampling"
	"github.com/banshee-data/carm/internal/version"
	"github.com/banshee-data/carm/internal/volume"
)

// options holds the parsed command line.
type options struct {
	configPath string
	volumePath string

	rotation, tilt                 float64
	pushPull, raiseLower, headFoot float64
	sdd, diameter                  float64

	rotationSD, tiltSD                   float64
	pushPullSD, raiseLowerSD, headFootSD float64
	samples                              int

	width, height int
	borderFactor  float64

	endpoint string
	session  string
	post     bool

	preview int
	seed    uint64

	version bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("carm-sim", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "JSON config file (see "+config.DefaultConfigPath+")")
	fs.StringVar(&o.volumePath, "volume", "", "Volume metadata JSON file or DICOM series directory")

	fs.Float64Var(&o.rotation, "rotation", 0, "Arm rotation in degrees (alpha)")
	fs.Float64Var(&o.tilt, "tilt", 0, "Arm tilt in degrees (beta)")
	fs.Float64Var(&o.pushPull, "push-pull", 0, "Push/pull translation in mm (L)")
	fs.Float64Var(&o.raiseLower, "raise-lower", 0, "Raise/lower translation in mm (P)")
	fs.Float64Var(&o.headFoot, "head-foot", 0, "Head/foot translation in mm (S)")
	fs.Float64Var(&o.sdd, "sdd", 0, "Source to detector distance in mm (default from config)")
	fs.Float64Var(&o.diameter, "detector-diameter", 0, "Detector diameter in mm (default from config)")

	fs.Float64Var(&o.rotationSD, "rotation-sd", 0, "Randomize rotation with this std-dev in degrees")
	fs.Float64Var(&o.tiltSD, "tilt-sd", 0, "Randomize tilt with this std-dev in degrees")
	fs.Float64Var(&o.pushPullSD, "push-pull-sd", 0, "Randomize push/pull with this std-dev in mm")
	fs.Float64Var(&o.raiseLowerSD, "raise-lower-sd", 0, "Randomize raise/lower with this std-dev in mm")
	fs.Float64Var(&o.headFootSD, "head-foot-sd", 0, "Randomize head/foot with this std-dev in mm")
	fs.IntVar(&o.samples, "samples", 0, "Number of samples to request (default from config)")

	fs.IntVar(&o.width, "width", 0, "Viewport width in pixels (default from config)")
	fs.IntVar(&o.height, "height", 0, "Viewport height in pixels (default from config)")
	fs.Float64Var(&o.borderFactor, "border-factor", 0, "Camera border margin (default from config)")

	fs.StringVar(&o.endpoint, "endpoint", "", "Render service base URL")
	fs.StringVar(&o.session, "session", "", "Session UUID or a URL path containing /session/<id>/")
	fs.BoolVar(&o.post, "post", false, "Post the exported parameters to the session")

	fs.IntVar(&o.preview, "preview", 0, "Draw this many local samples and print their summary")
	fs.Uint64Var(&o.seed, "seed", 0, "Seed for -preview (default from config)")

	fs.BoolVar(&o.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, nil
}

// Report is the JSON document carm-sim prints.
type Report struct {
	Pose     carm.CArmPose                    `json:"pose"`
	Volume   carm.VolumeMetadata              `json:"volume"`
	Geometry carm.DerivedGeometry             `json:"geometry"`
	Camera   carm.CameraParameters            `json:"camera"`
	Export   carm.ExportParameters            `json:"export"`
	Preview  map[string]sampling.FieldSummary `json:"preview,omitempty"`
}

// buildSimulation applies config and flag overrides to a new pose model.
func buildSimulation(o *options, cfg *config.Config, vol carm.VolumeMetadata) *carm.Simulation {
	pose := cfg.Pose()
	pose.RotationDeg = o.rotation
	pose.TiltDeg = o.tilt
	pose.Translation = r3.Vec{X: o.pushPull, Y: o.raiseLower, Z: o.headFoot}
	if o.sdd > 0 {
		pose.SourceToDetectorDistanceMm = o.sdd
	}
	if o.diameter > 0 {
		pose.DetectorDiameterMm = o.diameter
	}

	model := carm.NewPoseModel(pose)
	rnd := carm.RandomizationConfig{
		Rotation:   carm.AxisRandomization{Enabled: o.rotationSD > 0, StdDev: o.rotationSD},
		Tilt:       carm.AxisRandomization{Enabled: o.tiltSD > 0, StdDev: o.tiltSD},
		NumSamples: cfg.GetNumSamples(),
	}
	rnd.Translation[carm.PushPullAxis] = carm.AxisRandomization{Enabled: o.pushPullSD > 0, StdDev: o.pushPullSD}
	rnd.Translation[carm.RaiseLowerAxis] = carm.AxisRandomization{Enabled: o.raiseLowerSD > 0, StdDev: o.raiseLowerSD}
	rnd.Translation[carm.HeadFootAxis] = carm.AxisRandomization{Enabled: o.headFootSD > 0, StdDev: o.headFootSD}
	if o.samples > 0 {
		rnd.NumSamples = o.samples
	}
	model.SetRandomization(rnd)

	sim := carm.NewSimulation(model, vol)
	vp := cfg.GetViewport()
	if o.width > 0 {
		vp.Width = o.width
	}
	if o.height > 0 {
		vp.Height = o.height
	}
	sim.SetViewport(vp)
	bf := cfg.GetBorderFactor()
	if o.borderFactor > 0 {
		bf = o.borderFactor
	}
	sim.SetBorderFactor(bf)
	return sim
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	return config.LoadConfig(path)
}

func loadVolume(path string) (carm.VolumeMetadata, error) {
	if path == "" {
		return carm.IdentityVolume([3]int{512, 512, 512}, [3]float64{1, 1, 1}), nil
	}
	return volume.Load(path)
}

// sessionID accepts a bare UUID or any path with a /session/<id>/ segment.
func sessionID(s string) (string, error) {
	if s == "" || !strings.Contains(s, "/") {
		return s, nil
	}
	return export.ParseSessionID(s)
}

func run(ctx context.Context, args []string, out io.Writer, client httputil.HTTPClient) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(out, version.String("carm-sim"))
		return nil
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	vol, err := loadVolume(o.volumePath)
	if err != nil {
		return fmt.Errorf("failed to load volume: %w", err)
	}

	sim := buildSimulation(o, cfg, vol)
	report := Report{
		Pose:     sim.PoseModel().Pose(),
		Volume:   sim.Volume(),
		Geometry: sim.Geometry(),
		Camera:   sim.Camera(),
		Export:   sim.Export(),
	}

	if o.preview > 0 {
		seed := cfg.GetSampleSeed()
		if o.seed != 0 {
			seed = o.seed
		}
		p := report.Export
		p.NumSamples = o.preview
		report.Preview = sampling.Summary(sampling.NewParameterSampler(seed).Draw(p))
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if !o.post {
		return nil
	}
	endpoint := o.endpoint
	if endpoint == "" {
		endpoint = cfg.GetEndpoint()
	}
	session := o.session
	if session == "" {
		session = cfg.GetSessionID()
	}
	id, err := sessionID(session)
	if err != nil {
		return err
	}
	c := export.NewClient(endpoint, id)
	if client != nil {
		c.HTTP = client
	}
	return c.PostParameters(ctx, report.Export)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, nil); err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Fatalf("carm-sim: %v", err)
	}
}
