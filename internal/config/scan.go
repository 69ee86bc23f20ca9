package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/footscan/internal/scan/geometry"
	"github.com/banshee-data/footscan/internal/scan/tuning"
)

// DefaultConfigPath is the path to the canonical scan defaults file.
const DefaultConfigPath = "config/scan.defaults.json"

// ScanConfig is the host-facing configuration. Every field is optional;
// the Get* methods supply defaults. The JSON keys are the same ones the
// Configure RPC accepts, so one document serves both startup and runtime
// updates.
type ScanConfig struct {
	// Segmentation and rate control
	TargetFPS          *float64 `json:"targetFps,omitempty"`
	MaxPoints          *int     `json:"maxPoints,omitempty"`
	MinDepthM          *float64 `json:"minDepthM,omitempty"`
	MaxDepthM          *float64 `json:"maxDepthM,omitempty"`
	RemoveGround       *bool    `json:"removeGround,omitempty"`
	ClusterFoot        *bool    `json:"clusterFoot,omitempty"`
	TrackingOnlyNormal *bool    `json:"trackingOnlyNormal,omitempty"`
	ClusterCellM       *float64 `json:"clusterCellM,omitempty"`
	AutoTune           *bool    `json:"autoTune,omitempty"`
	GroundEpsM         *float64 `json:"groundEpsM,omitempty"`
	SampleStride       *int     `json:"sampleStride,omitempty"`

	// Service
	ListenAddr      *string `json:"listenAddr,omitempty"`
	DebugAddr       *string `json:"debugAddr,omitempty"`
	DBPath          *string `json:"dbPath,omitempty"`
	PreviewMaxWidth *int    `json:"previewMaxWidth,omitempty"`
	RecordFrames    *bool   `json:"recordFrames,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyScanConfig returns a ScanConfig with all fields unset.
func EmptyScanConfig() *ScanConfig {
	return &ScanConfig{}
}

// DefaultScanConfig returns a ScanConfig with every field set to its default.
func DefaultScanConfig() *ScanConfig {
	d := tuning.Default()
	return &ScanConfig{
		TargetFPS:          ptrFloat64(d.TargetFPS),
		MaxPoints:          ptrInt(d.MaxPoints),
		MinDepthM:          ptrFloat64(d.MinDepthM),
		MaxDepthM:          ptrFloat64(d.MaxDepthM),
		RemoveGround:       ptrBool(d.RemoveGround),
		ClusterFoot:        ptrBool(d.ClusterFoot),
		TrackingOnlyNormal: ptrBool(d.TrackingOnlyNormal),
		ClusterCellM:       ptrFloat64(d.ClusterCellM),
		AutoTune:           ptrBool(d.AutoTune),
		GroundEpsM:         ptrFloat64(d.GroundEpsM),
		SampleStride:       ptrInt(d.SampleStride),
		ListenAddr:         ptrString("localhost:50051"),
		DebugAddr:          ptrString("localhost:8089"),
		DBPath:             ptrString("footscan.db"),
		PreviewMaxWidth:    ptrInt(320),
		RecordFrames:       ptrBool(true),
	}
}

// LoadScanConfig loads a ScanConfig from a JSON file. Fields omitted from
// the file keep their defaults.
func LoadScanConfig(path string) (*ScanConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyScanConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories so tests can call it from any package. It panics on failure.
func MustLoadDefaultConfig() *ScanConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadScanConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate rejects values that cannot be applied at all. Range is not
// checked: numeric values are applied as given.
func (c *ScanConfig) Validate() error {
	floats := map[string]*float64{
		"targetFps":    c.TargetFPS,
		"minDepthM":    c.MinDepthM,
		"maxDepthM":    c.MaxDepthM,
		"clusterCellM": c.ClusterCellM,
		"groundEpsM":   c.GroundEpsM,
	}
	for name, v := range floats {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be finite, got %v", name, *v)
		}
	}
	if c.ListenAddr != nil && *c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.PreviewMaxWidth != nil && *c.PreviewMaxWidth < 0 {
		return fmt.Errorf("previewMaxWidth must be non-negative, got %d", *c.PreviewMaxWidth)
	}
	return nil
}

// TuningState builds the initial tuning snapshot from the config.
func (c *ScanConfig) TuningState() tuning.State {
	st := tuning.Default()
	c.ApplyTo(&st)
	return st
}

// ApplyTo copies every set scan field into st and returns the JSON keys it
// applied. The sampling stride is clamped to [1, geometry.MaxSampleStride];
// nothing else is clamped.
func (c *ScanConfig) ApplyTo(st *tuning.State) []string {
	var applied []string
	setF := func(key string, src *float64, dst *float64) {
		if src != nil {
			*dst = *src
			applied = append(applied, key)
		}
	}
	setI := func(key string, src *int, dst *int) {
		if src != nil {
			*dst = *src
			applied = append(applied, key)
		}
	}
	setB := func(key string, src *bool, dst *bool) {
		if src != nil {
			*dst = *src
			applied = append(applied, key)
		}
	}

	setF("targetFps", c.TargetFPS, &st.TargetFPS)
	setI("maxPoints", c.MaxPoints, &st.MaxPoints)
	setF("minDepthM", c.MinDepthM, &st.MinDepthM)
	setF("maxDepthM", c.MaxDepthM, &st.MaxDepthM)
	setB("removeGround", c.RemoveGround, &st.RemoveGround)
	setB("clusterFoot", c.ClusterFoot, &st.ClusterFoot)
	setB("trackingOnlyNormal", c.TrackingOnlyNormal, &st.TrackingOnlyNormal)
	setF("clusterCellM", c.ClusterCellM, &st.ClusterCellM)
	setB("autoTune", c.AutoTune, &st.AutoTune)
	setF("groundEpsM", c.GroundEpsM, &st.GroundEpsM)
	if c.SampleStride != nil {
		st.SampleStride = min(max(*c.SampleStride, 1), geometry.MaxSampleStride)
		applied = append(applied, "sampleStride")
	}
	return applied
}

// GetListenAddr returns the gRPC listen address or the default.
func (c *ScanConfig) GetListenAddr() string {
	if c.ListenAddr == nil {
		return "localhost:50051"
	}
	return *c.ListenAddr
}

// GetDebugAddr returns the debug HTTP address or the default. An empty
// string disables the debug server.
func (c *ScanConfig) GetDebugAddr() string {
	if c.DebugAddr == nil {
		return "localhost:8089"
	}
	return *c.DebugAddr
}

// GetDBPath returns the sqlite database path or the default.
func (c *ScanConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "footscan.db"
	}
	return *c.DBPath
}

// GetPreviewMaxWidth returns the preview width bound or the default.
func (c *ScanConfig) GetPreviewMaxWidth() int {
	if c.PreviewMaxWidth == nil {
		return 320
	}
	return *c.PreviewMaxWidth
}

// GetRecordFrames reports whether per-frame statistics are persisted.
func (c *ScanConfig) GetRecordFrames() bool {
	if c.RecordFrames == nil {
		return true
	}
	return *c.RecordFrames
}

// GetTargetFPS returns the target frame rate or the default.
func (c *ScanConfig) GetTargetFPS() float64 {
	if c.TargetFPS == nil {
		return tuning.Default().TargetFPS
	}
	return *c.TargetFPS
}
