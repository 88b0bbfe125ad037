package waybridge

import "os"

// Config configures a Bridge. The zero value is the default configuration
// that DefaultConfig returns; ConfigFromEnv fills it from the environment.
type Config struct {
	// XDisplay is the windowing-server DISPLAY string (e.g. ":0"). Empty
	// means use the DISPLAY environment variable, same as xserver.Connect.
	XDisplay string

	// Synchronize makes New perform one round trip to the windowing
	// server after connecting and interning atoms. Requests issued after
	// that are not followed by a round trip. For debugging only.
	Synchronize bool

	// ApplyStateWorkaround enables the state-from-dimensions heuristic
	// (role.ToplevelRole.GuessStateFromDims) for window managers that
	// never send an explicit maximized/fullscreen state.
	ApplyStateWorkaround bool

	// DirectStateChanges disables the 10ms configure batch window and
	// applies window-manager state notifications immediately.
	DirectStateChanges bool
}

// DefaultConfig returns the configuration used when no environment
// variables are set: asynchronous server mode, no dimension-guessing
// workaround, batched state changes.
func DefaultConfig() Config {
	return Config{}
}

// ConfigFromEnv returns DefaultConfig with SYNCHRONIZE, APPLY_STATE_WORKAROUND,
// and DIRECT_STATE_CHANGES applied from the process environment, per the CLI
// surface's recognized variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.XDisplay = os.Getenv("DISPLAY")
	cfg.Synchronize = envFlagSet("SYNCHRONIZE")
	cfg.ApplyStateWorkaround = envFlagSet("APPLY_STATE_WORKAROUND")
	cfg.DirectStateChanges = envFlagSet("DIRECT_STATE_CHANGES")
	return cfg
}

// envFlagSet treats any non-empty value as true, matching the CLI's
// presence-triggered environment variables (no "0"/"false" opt-out).
func envFlagSet(name string) bool {
	return os.Getenv(name) != ""
}

// WithXDisplay returns a copy with the windowing-server display set.
func (c Config) WithXDisplay(display string) Config {
	c.XDisplay = display
	return c
}
