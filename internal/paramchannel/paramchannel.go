// Package paramchannel carries per-request filter parameters from the
// Coordinator to workers without threading a parameter through every call
// in between. In-process dispatch attaches the bundle to the fan-out
// context (WithContext/FromContext), so concurrent batches each see their
// own overrides; the FILTER_PARAMS environment variable remains the
// bootstrap channel for a worker running as its own process, and the
// fallback when no bundle rides the context.
package paramchannel

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"ares_api/internal/logger"
)

// EnvVar is the environment variable Set writes and Load reads; FromContext
// falls back to it when no bundle rides the context.
const EnvVar = "FILTER_PARAMS"

// Bundle holds the namespaced key/value document decoded from FILTER_PARAMS,
// falling back to compiled-in defaults on absence or malformed JSON.
type Bundle struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// Load reads FILTER_PARAMS from the environment and parses it. A missing or
// malformed document never errors — it logs and yields an empty bundle so
// every lookup falls through to its caller-supplied default.
func Load() *Bundle {
	raw := os.Getenv(EnvVar)
	b := &Bundle{values: map[string]interface{}{}}
	if raw == "" {
		return b
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logger.Warn("paramchannel: malformed FILTER_PARAMS, using defaults", "error", err.Error())
		return b
	}
	b.values = decoded
	return b
}

// Set publishes a parameter document into the process environment for
// subsequently-spawned worker processes. It is a process-global mutation:
// goroutine workers dispatched inside one process must receive their
// batch's parameters via WithContext instead, or concurrent batches race
// on the single environment value.
func Set(doc map[string]interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.Setenv(EnvVar, string(data))
}

// Clear removes FILTER_PARAMS from the environment.
func Clear() {
	os.Unsetenv(EnvVar)
}

// FromParams builds a Bundle directly from a request's parameter document,
// skipping the environment round-trip. The document is normalized through
// JSON encoding so lookups see the same value types Load produces; an
// unencodable document logs and yields an empty bundle, the same policy
// Load applies to malformed FILTER_PARAMS.
func FromParams(doc map[string]interface{}) *Bundle {
	b := &Bundle{values: map[string]interface{}{}}
	if len(doc) == 0 {
		return b
	}

	data, err := json.Marshal(doc)
	if err != nil {
		logger.Warn("paramchannel: unencodable filter params, using defaults", "error", err.Error())
		return b
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		logger.Warn("paramchannel: undecodable filter params, using defaults", "error", err.Error())
		return b
	}
	b.values = decoded
	return b
}

// ctxKey scopes one request's bundle to its own fan-out context.
type ctxKey struct{}

// WithContext returns a context carrying bundle, so every worker the
// Coordinator dispatches for one batch resolves that batch's parameters
// regardless of what other batches are in flight.
func WithContext(ctx context.Context, b *Bundle) context.Context {
	if b == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext returns the request-scoped bundle, falling back to Load()
// when none is attached — a worker spawned as its own process still picks
// up FILTER_PARAMS from its environment.
func FromContext(ctx context.Context) *Bundle {
	if ctx != nil {
		if b, ok := ctx.Value(ctxKey{}).(*Bundle); ok {
			return b
		}
	}
	return Load()
}

// Float looks up a namespaced float key (e.g. "support_resistance.min_touch_count"),
// returning def if absent or not a number.
func (b *Bundle) Float(namespacedKey string, def float64) float64 {
	v, ok := b.lookup(namespacedKey)
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return f
}

// Int looks up a namespaced int key. JSON numbers decode as float64; this
// truncates rather than rejects, matching the "malformed behaves as absent"
// policy only for parse failures, not for type looseness within valid JSON.
func (b *Bundle) Int(namespacedKey string, def int) int {
	v, ok := b.lookup(namespacedKey)
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return int(f)
}

// String looks up a namespaced string key.
func (b *Bundle) String(namespacedKey string, def string) string {
	v, ok := b.lookup(namespacedKey)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func (b *Bundle) lookup(namespacedKey string) (interface{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	parts := strings.SplitN(namespacedKey, ".", 2)
	if len(parts) != 2 {
		v, ok := b.values[namespacedKey]
		return v, ok
	}
	ns, key := parts[0], parts[1]
	sub, ok := b.values[ns]
	if !ok {
		return nil, false
	}
	m, ok := sub.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// SupportResistanceDefaults holds the tunables of the support_resistance
// namespace, used when no bundle value is set.
type SupportResistanceDefaults struct {
	MinSupportStrength    float64
	MinResistanceStrength float64
	MinTouchCount         int
	MaxDistancePct        float64
	TolerancePct          float64
	FractalWindow         int
}

// DefaultSupportResistanceParams are the compiled-in fallback values.
var DefaultSupportResistanceParams = SupportResistanceDefaults{
	MinSupportStrength:    0.5,
	MinResistanceStrength: 0.5,
	MinTouchCount:         2,
	MaxDistancePct:        0.10,
	TolerancePct:          0.02,
	FractalWindow:         5,
}

// SupportResistanceParams resolves the support_resistance namespace from the
// bundle, falling back field-by-field to DefaultSupportResistanceParams.
func (b *Bundle) SupportResistanceParams() SupportResistanceDefaults {
	d := DefaultSupportResistanceParams
	return SupportResistanceDefaults{
		MinSupportStrength:    b.Float("support_resistance.min_support_strength", d.MinSupportStrength),
		MinResistanceStrength: b.Float("support_resistance.min_resistance_strength", d.MinResistanceStrength),
		MinTouchCount:         b.Int("support_resistance.min_touch_count", d.MinTouchCount),
		MaxDistancePct:        b.Float("support_resistance.max_distance_pct", d.MaxDistancePct),
		TolerancePct:          b.Float("support_resistance.tolerance_pct", d.TolerancePct),
		FractalWindow:         b.Int("support_resistance.fractal_window", d.FractalWindow),
	}
}
