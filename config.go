package timewarp

import (
	"fmt"
	"os"
	"time"

	"github.com/soniakeys/meeus/julian"
	"github.com/spf13/viper"
)

const (
	// defaultε is the engine-wide floating-point tolerance.
	defaultε = 1e-8
	// defaultRetries bounds the adaptive bisection of one instant.
	defaultRetries = 64
)

var (
	cfgLoaded = false
	config    = _twconfig{}
)

// _twconfig is a "hidden" struct, just use `twConfig`
type _twconfig struct {
	eps          float64
	maxRetries   int
	logActions   bool
	outputDir    string
	epochEnabled bool
	epochJD      float64
	unitSeconds  float64
}

func (c _twconfig) String() string {
	return fmt.Sprintf("[timewarp:config] ε=%g retries=%d output=%s", c.eps, c.maxRetries, c.outputDir)
}

// JD maps a coordinate time to a Julian date when an epoch is configured.
// Coordinate time is in units of unitSeconds seconds past the epoch.
func (c _twconfig) JD(t float64) float64 {
	return c.epochJD + t*c.unitSeconds/86400
}

// twConfig returns the timewarp configuration. The configuration directory
// is named by the TW_CONFIG environment variable and holds a conf.toml;
// without it the compiled defaults apply, so the engine runs unconfigured.
func twConfig() _twconfig {
	if cfgLoaded {
		return config
	}
	config = _twconfig{
		eps:         defaultε,
		maxRetries:  defaultRetries,
		logActions:  true,
		outputDir:   ".",
		unitSeconds: 1,
	}
	confPath := os.Getenv("TW_CONFIG")
	if confPath == "" {
		cfgLoaded = true
		return config
	}
	viper.SetConfigName("conf")
	viper.AddConfigPath(confPath)
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("%s/conf.toml not found", confPath))
	}
	viper.SetDefault("sim.eps", defaultε)
	viper.SetDefault("sim.max_retries", defaultRetries)
	viper.SetDefault("sim.log_actions", true)
	viper.SetDefault("general.output_path", ".")
	viper.SetDefault("epoch.unit_seconds", 1.0)

	config.eps = viper.GetFloat64("sim.eps")
	config.maxRetries = viper.GetInt("sim.max_retries")
	config.logActions = viper.GetBool("sim.log_actions")
	config.outputDir = viper.GetString("general.output_path")
	config.unitSeconds = viper.GetFloat64("epoch.unit_seconds")
	if viper.GetBool("epoch.enabled") {
		if epoch, err := time.Parse(time.RFC3339, viper.GetString("epoch.start")); err == nil {
			config.epochEnabled = true
			config.epochJD = julian.TimeToJD(epoch.UTC())
		} else {
			fmt.Println("[ERROR] Could not parse epoch.start, epoch disabled")
		}
	}
	cfgLoaded = true
	return config
}
