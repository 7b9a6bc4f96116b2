// Package config handles meshquery configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/meshquery/internal/meshio"
	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
	"github.com/Faultbox/meshquery/pkg/mesh"
)

// Config holds all tool settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Query   QueryConfig   `yaml:"query"`
	Camera  CameraConfig  `yaml:"camera"`
	Model   ModelConfig   `yaml:"model"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"` // console or json
}

// QueryConfig holds defaults applied to every query.
type QueryConfig struct {
	CanHitCulledFaces bool    `yaml:"can_hit_culled_faces"`
	FlipNegativeScale bool    `yaml:"flip_negative_scale"`
	Inflate           float32 `yaml:"inflate"` // grows the first mesh's box in intersect queries
}

// CameraConfig describes the view used for back-face culling.
type CameraConfig struct {
	Position   [3]float32 `yaml:"position"`
	Forward    [3]float32 `yaml:"forward"`
	Projection string     `yaml:"projection"`
}

// ModelConfig controls how RSM models are flattened into meshes.
type ModelConfig struct {
	ReverseWinding bool `yaml:"reverse_winding"`
	DoubleSided    bool `yaml:"double_sided"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
			Format:  "console",
		},
		Query: QueryConfig{
			CanHitCulledFaces: true,
			FlipNegativeScale: false,
			Inflate:           0,
		},
		Camera: CameraConfig{
			Forward:    [3]float32{0, 0, -1},
			Projection: "perspective",
		},
	}
}

// Validate checks values that cannot be caught by YAML decoding.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format %q: want console or json", c.Logging.Format)
	}
	if _, ok := geom.ParseProjection(c.Camera.Projection); !ok {
		return fmt.Errorf("camera.projection %q: want perspective or orthographic", c.Camera.Projection)
	}
	if math.FromArray(c.Camera.Forward).IsZero() {
		return fmt.Errorf("camera.forward must be non-zero")
	}
	if c.Query.Inflate < 0 {
		return fmt.Errorf("query.inflate %g must not be negative", c.Query.Inflate)
	}
	return nil
}

// Camera converts the camera section to a geom.Camera.
func (c CameraConfig) Camera() geom.Camera {
	proj, _ := geom.ParseProjection(c.Projection)
	return geom.Camera{
		Position:   math.FromArray(c.Position),
		Forward:    math.FromArray(c.Forward).Normalize(),
		Projection: proj,
	}
}

// RaycastConfig builds the per-query raycast settings. The camera is only
// attached when culled faces are excluded.
func (c *Config) RaycastConfig() mesh.RaycastConfig {
	rc := mesh.RaycastConfig{
		CanHitCameraCulledFaces:    c.Query.CanHitCulledFaces,
		FlipNegativeScaleTriangles: c.Query.FlipNegativeScale,
	}
	if !rc.CanHitCameraCulledFaces {
		cam := c.Camera.Camera()
		rc.Camera = &cam
	}
	return rc
}

// MeshOptions returns the reader settings for model files.
func (c *Config) MeshOptions() meshio.Options {
	opts := meshio.Options{}
	opts.RSM.ReverseWinding = c.Model.ReverseWinding
	opts.RSM.DoubleSided = c.Model.DoubleSided
	return opts
}
