package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile    = flag.String("log-file", "", "Also write logs to this file")
	flagJSONLogs   = flag.Bool("json-logs", false, "Emit logs as JSON")
	flagCull       = flag.Bool("cull", false, "Skip faces culled by the configured camera")
	flagFlip       = flag.Bool("flip-negative-scale", false, "Flip hit normals on mirrored transforms")
	flagInflate    = flag.Float64("inflate", 0, "Grow the first mesh's box in intersect queries")
	flagProjection = flag.String("projection", "", "Camera projection: perspective or orthographic")
	flagTwoSided   = flag.Bool("double-sided", false, "Give every RSM face a back face")
)

// ParseFlags parses the global flags preceding the subcommand. Call this
// early in main() and dispatch on flag.Args().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagJSONLogs {
		cfg.Logging.Format = "json"
	}
	if *flagCull {
		cfg.Query.CanHitCulledFaces = false
	}
	if *flagFlip {
		cfg.Query.FlipNegativeScale = true
	}
	if *flagInflate > 0 {
		cfg.Query.Inflate = float32(*flagInflate)
	}
	if *flagProjection != "" {
		cfg.Camera.Projection = *flagProjection
	}
	if *flagTwoSided {
		cfg.Model.DoubleSided = true
	}
}
