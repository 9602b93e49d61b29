package config

const (
	defaultDataDir         = "~/.pkgsweep"
	defaultMaxPackages     = 1000
	defaultMaxSizeGiB      = 10
	defaultPreserveDays    = 90
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultEnablePredictor = false
	defaultEnableDedup     = false
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Cache: Cache{
			MaxPackages: defaultMaxPackages,
			MaxSizeGiB:  defaultMaxSizeGiB,
		},
		Optimize: Optimize{
			PreserveDays:    defaultPreserveDays,
			EnablePredictor: defaultEnablePredictor,
			EnableDedup:     defaultEnableDedup,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
