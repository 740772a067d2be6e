package paramchannel

import (
	"context"
	"os"
	"testing"
)

func TestLoadAbsentUsesDefaults(t *testing.T) {
	os.Unsetenv(EnvVar)
	b := Load()
	params := b.SupportResistanceParams()
	if params.MinTouchCount != DefaultSupportResistanceParams.MinTouchCount {
		t.Fatalf("min_touch_count = %d, want default %d", params.MinTouchCount, DefaultSupportResistanceParams.MinTouchCount)
	}
}

func TestLoadMalformedUsesDefaults(t *testing.T) {
	os.Setenv(EnvVar, "{not json")
	defer os.Unsetenv(EnvVar)

	b := Load()
	params := b.SupportResistanceParams()
	if params.FractalWindow != DefaultSupportResistanceParams.FractalWindow {
		t.Fatalf("fractal_window = %d, want default %d", params.FractalWindow, DefaultSupportResistanceParams.FractalWindow)
	}
}

func TestFromParamsNormalizesValueTypes(t *testing.T) {
	b := FromParams(map[string]interface{}{
		"support_resistance": map[string]interface{}{
			"min_touch_count": 3, // plain Go int, not a decoded float64
		},
	})
	if got := b.SupportResistanceParams().MinTouchCount; got != 3 {
		t.Fatalf("min_touch_count = %d, want 3", got)
	}
}

func TestFromContextPrefersRequestBundle(t *testing.T) {
	if err := Set(map[string]interface{}{
		"support_resistance": map[string]interface{}{"min_touch_count": 9},
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	defer Clear()

	ctx := WithContext(context.Background(), FromParams(map[string]interface{}{
		"support_resistance": map[string]interface{}{"min_touch_count": 1},
	}))

	params := FromContext(ctx).SupportResistanceParams()
	if params.MinTouchCount != 1 {
		t.Fatalf("min_touch_count = %d, want the context bundle's 1, not the environment's 9", params.MinTouchCount)
	}
}

func TestFromContextFallsBackToEnvironment(t *testing.T) {
	if err := Set(map[string]interface{}{
		"support_resistance": map[string]interface{}{"min_touch_count": 4},
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	defer Clear()

	params := FromContext(context.Background()).SupportResistanceParams()
	if params.MinTouchCount != 4 {
		t.Fatalf("min_touch_count = %d, want the environment's 4", params.MinTouchCount)
	}
}

func TestSetThenLoadOverridesDefault(t *testing.T) {
	defer Clear()

	err := Set(map[string]interface{}{
		"support_resistance": map[string]interface{}{
			"min_touch_count": 5,
			"tolerance_pct":   0.05,
		},
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	b := Load()
	params := b.SupportResistanceParams()
	if params.MinTouchCount != 5 {
		t.Fatalf("min_touch_count = %d, want 5", params.MinTouchCount)
	}
	if params.TolerancePct != 0.05 {
		t.Fatalf("tolerance_pct = %v, want 0.05", params.TolerancePct)
	}
	if params.MinSupportStrength != DefaultSupportResistanceParams.MinSupportStrength {
		t.Fatalf("min_support_strength should still fall back to default, got %v", params.MinSupportStrength)
	}
}
