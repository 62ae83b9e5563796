package config

import "flag"

var (
	flagConfig = flag.String("config", "", "Path to config file")
	flagDebug  = flag.Bool("debug", false, "Enable debug logging")
	flagSource = flag.String("source", "", "Mesh to deform")
	flagTarget = flag.String("target", "", "Mesh to wrap onto")
	flagAux    = flag.String("aux", "", "Auxiliary projection target")
	flagOutput = flag.String("out", "", "Output mesh path")
	flagMode   = flag.String("mode", "", "nearest_vertex, nearest_surface, project or target_project")
	flagSnap   = flag.String("snap", "", "on_surface, inside, outside, outside_surface or above_surface")
	flagKeep   = flag.Float64("keep", 0, "Distance kept from the target surface")
	flagAxes   = flag.String("axes", "", "Projection axes, a subset of xyz")
	flagLimit  = flag.Float64("limit", 0, "Maximum projection distance")
	flagLog    = flag.String("log", "", "Log file path")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via -config.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config. Zero values leave
// the config untouched.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagSource != "" {
		cfg.Source = *flagSource
	}
	if *flagTarget != "" {
		cfg.Target = *flagTarget
	}
	if *flagAux != "" {
		cfg.Aux = *flagAux
	}
	if *flagOutput != "" {
		cfg.Output = *flagOutput
	}
	if *flagMode != "" {
		cfg.Shrinkwrap.Mode = *flagMode
	}
	if *flagSnap != "" {
		cfg.Shrinkwrap.Snap = *flagSnap
	}
	if *flagKeep != 0 {
		cfg.Shrinkwrap.KeepDistance = *flagKeep
	}
	if *flagAxes != "" {
		cfg.Shrinkwrap.Project.Axes = *flagAxes
	}
	if *flagLimit != 0 {
		cfg.Shrinkwrap.Project.Limit = *flagLimit
	}
	if *flagLog != "" {
		cfg.Logging.LogFile = *flagLog
	}
}
