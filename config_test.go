package waybridge

import "testing"

func TestConfigFromEnv_DefaultsToAsynchronousBatchedMode(t *testing.T) {
	t.Setenv("SYNCHRONIZE", "")
	t.Setenv("APPLY_STATE_WORKAROUND", "")
	t.Setenv("DIRECT_STATE_CHANGES", "")
	t.Setenv("DISPLAY", ":0")

	cfg := ConfigFromEnv()
	if cfg.Synchronize {
		t.Fatal("expected Synchronize false when SYNCHRONIZE is unset")
	}
	if cfg.ApplyStateWorkaround {
		t.Fatal("expected ApplyStateWorkaround false when unset")
	}
	if cfg.DirectStateChanges {
		t.Fatal("expected DirectStateChanges false when unset")
	}
	if cfg.XDisplay != ":0" {
		t.Fatalf("expected XDisplay from DISPLAY, got %q", cfg.XDisplay)
	}
}

func TestConfigFromEnv_FlagsAreSetByAnyNonEmptyValue(t *testing.T) {
	t.Setenv("SYNCHRONIZE", "1")
	t.Setenv("APPLY_STATE_WORKAROUND", "yes")
	t.Setenv("DIRECT_STATE_CHANGES", "true")
	t.Setenv("DISPLAY", "")

	cfg := ConfigFromEnv()
	if !cfg.Synchronize || !cfg.ApplyStateWorkaround || !cfg.DirectStateChanges {
		t.Fatal("expected all three flags set from non-empty environment variables")
	}
}

func TestConfig_WithXDisplay(t *testing.T) {
	cfg := DefaultConfig().WithXDisplay(":1")
	if cfg.XDisplay != ":1" {
		t.Fatalf("expected XDisplay :1, got %q", cfg.XDisplay)
	}
}
