package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.uber.org/multierr"

	"github.com/banshee-data/footscan/internal/monitoring"
	"github.com/banshee-data/footscan/internal/scan/tuning"
)

// FieldError rejects one configuration field.
type FieldError struct {
	Field string
	Want  string
	Got   any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config field %q: want %s, got %T(%v)", e.Field, e.Want, e.Got, e.Got)
}

// ParseFields converts a loosely typed configuration map (decoded JSON or
// a protobuf Struct) into a ScanConfig. Unknown keys are ignored. A field
// of the wrong type is left unset and reported as a *FieldError; all such
// errors are combined with multierr, so the caller can apply the fields
// that did parse.
func ParseFields(fields map[string]any) (*ScanConfig, error) {
	cfg := EmptyScanConfig()
	var errs error

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := fields[k]
		var err error
		switch k {
		case "targetFps":
			cfg.TargetFPS, err = asFloat(k, v)
		case "maxPoints":
			cfg.MaxPoints, err = asInt(k, v)
		case "minDepthM":
			cfg.MinDepthM, err = asFloat(k, v)
		case "maxDepthM":
			cfg.MaxDepthM, err = asFloat(k, v)
		case "removeGround":
			cfg.RemoveGround, err = asBool(k, v)
		case "clusterFoot":
			cfg.ClusterFoot, err = asBool(k, v)
		case "trackingOnlyNormal":
			cfg.TrackingOnlyNormal, err = asBool(k, v)
		case "clusterCellM":
			cfg.ClusterCellM, err = asFloat(k, v)
		case "autoTune":
			cfg.AutoTune, err = asBool(k, v)
		case "groundEpsM":
			cfg.GroundEpsM, err = asFloat(k, v)
		case "sampleStride":
			cfg.SampleStride, err = asInt(k, v)
		}
		errs = multierr.Append(errs, err)
	}
	return cfg, errs
}

// FieldErrors splits an error returned by ParseFields into its parts.
func FieldErrors(err error) []error {
	return multierr.Errors(err)
}

func asFloat(key string, v any) (*float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return nil, &FieldError{Field: key, Want: "number", Got: v}
		}
	default:
		return nil, &FieldError{Field: key, Want: "number", Got: v}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &FieldError{Field: key, Want: "finite number", Got: v}
	}
	return &f, nil
}

func asInt(key string, v any) (*int, error) {
	switch n := v.(type) {
	case int:
		return &n, nil
	case int64:
		i := int(n)
		return &i, nil
	}
	f, err := asFloat(key, v)
	if err != nil {
		return nil, &FieldError{Field: key, Want: "integer", Got: v}
	}
	if *f != math.Trunc(*f) {
		return nil, &FieldError{Field: key, Want: "integer", Got: v}
	}
	i := int(*f)
	return &i, nil
}

func asBool(key string, v any) (*bool, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, &FieldError{Field: key, Want: "bool", Got: v}
	}
	return &b, nil
}

// Applier applies runtime configuration maps to a tuning store.
type Applier struct {
	Store *tuning.Store
}

// NewApplier returns an Applier writing to store.
func NewApplier(store *tuning.Store) *Applier {
	return &Applier{Store: store}
}

// Apply parses fields, publishes every well-typed field in one tuning
// update and returns the applied keys. A non-nil error lists the rejected
// fields; it never prevents the others from applying.
func (a *Applier) Apply(fields map[string]any) ([]string, error) {
	cfg, err := ParseFields(fields)
	var applied []string
	if len(cfg.ApplyTo(&tuning.State{})) > 0 {
		a.Store.Update(func(st *tuning.State) { applied = cfg.ApplyTo(st) })
	}
	if err != nil {
		monitoring.Logf("[config] rejected %d field(s): %v", len(FieldErrors(err)), err)
	}
	if len(applied) > 0 {
		monitoring.Logf("[config] applied %v", applied)
	}
	return applied, err
}
