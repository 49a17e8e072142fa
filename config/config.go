// Package config holds the engine configuration. Values come from, in order
// of precedence, command line flags, the environment (optionally seeded from
// a dotenv file) and built-in defaults.
package config

import (
	"flag"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"wurmple/shaders"
)

// Environment variables read by Load.
const (
	EnvWidth          = "WURMPLE_WIDTH"
	EnvHeight         = "WURMPLE_HEIGHT"
	EnvTitle          = "WURMPLE_TITLE"
	EnvDebug          = "WURMPLE_DEBUG"
	EnvFramesInFlight = "WURMPLE_FRAMES_IN_FLIGHT"
	EnvShader         = "WURMPLE_SHADER"
	EnvFenceTimeout   = "WURMPLE_FENCE_TIMEOUT"
	EnvPresentMode    = "WURMPLE_PRESENT_MODE"
	EnvDrawWidth      = "WURMPLE_DRAW_WIDTH"
	EnvDrawHeight     = "WURMPLE_DRAW_HEIGHT"
	EnvLogLevel       = "WURMPLE_LOG_LEVEL"

	// EnvFile names a dotenv file for Load. It is read by the caller.
	EnvFile = "WURMPLE_ENV_FILE"
)

// Present modes understood by the engine.
const (
	PresentFifo      = "fifo"
	PresentMailbox   = "mailbox"
	PresentImmediate = "immediate"
)

// Config is the complete engine configuration.
type Config struct {
	Width  int
	Height int
	Title  string

	// Debug enables the Vulkan validation layers and the debug report
	// callback.
	Debug bool

	// FramesInFlight is the size of the frame slot ring.
	FramesInFlight int

	// ShaderPath is the SPIR-V binary of the background compute pass.
	ShaderPath string

	// FenceTimeout bounds both the per-frame fence wait and the swapchain
	// image acquisition.
	FenceTimeout time.Duration

	// PresentMode is one of PresentFifo, PresentMailbox or PresentImmediate.
	// The mode must be supported by the surface, there is no fallback.
	PresentMode string

	// DrawWidth and DrawHeight size the offscreen render target. Zero means
	// "same as the swapchain at startup".
	DrawWidth  int
	DrawHeight int

	LogLevel string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Width:          1080,
		Height:         720,
		Title:          "WURMPLE",
		FramesInFlight: 2,
		ShaderPath:     shaders.DefaultPath,
		FenceTimeout:   time.Second,
		PresentMode:    PresentFifo,
		LogLevel:       logrus.InfoLevel.String(),
	}
}

// Load builds a Config out of the defaults overridden by the environment.
// When envFile is not empty the file is read as a dotenv file first; its
// values do not override variables already present in the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil {
			return Config{}, errors.Wrapf(err, "loading env file %s", envFile)
		}
		current := envy.Map()
		for key, val := range values {
			if _, ok := current[key]; !ok {
				envy.Set(key, val)
			}
		}
	}

	cfg := Default()
	var err error

	if cfg.Width, err = envInt(EnvWidth, cfg.Width); err != nil {
		return Config{}, err
	}
	if cfg.Height, err = envInt(EnvHeight, cfg.Height); err != nil {
		return Config{}, err
	}
	if cfg.FramesInFlight, err = envInt(EnvFramesInFlight, cfg.FramesInFlight); err != nil {
		return Config{}, err
	}
	if cfg.DrawWidth, err = envInt(EnvDrawWidth, cfg.DrawWidth); err != nil {
		return Config{}, err
	}
	if cfg.DrawHeight, err = envInt(EnvDrawHeight, cfg.DrawHeight); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = envBool(EnvDebug, cfg.Debug); err != nil {
		return Config{}, err
	}

	timeout := envy.Get(EnvFenceTimeout, cfg.FenceTimeout.String())
	if cfg.FenceTimeout, err = time.ParseDuration(timeout); err != nil {
		return Config{}, errors.Wrapf(err, "parsing %s", EnvFenceTimeout)
	}

	cfg.Title = envy.Get(EnvTitle, cfg.Title)
	cfg.ShaderPath = envy.Get(EnvShader, cfg.ShaderPath)
	cfg.PresentMode = strings.ToLower(envy.Get(EnvPresentMode, cfg.PresentMode))
	cfg.LogLevel = strings.ToLower(envy.Get(EnvLogLevel, cfg.LogLevel))

	return cfg, nil
}

// RegisterFlags binds command line flags to the fields of c, using the
// current values as defaults. Call it before flag.Parse.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable Vulkan validation layers")
	fs.IntVar(&c.Width, "width", c.Width, "Window width in pixels")
	fs.IntVar(&c.Height, "height", c.Height, "Window height in pixels")
	fs.IntVar(&c.FramesInFlight, "frames", c.FramesInFlight, "Number of frames in flight")
	fs.StringVar(&c.ShaderPath, "shader", c.ShaderPath, "Path to the background compute shader")
	fs.StringVar(&c.PresentMode, "present-mode", c.PresentMode,
		"Swapchain present mode: fifo, mailbox or immediate")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return errors.Newf("window size %dx%d must be positive", c.Width, c.Height)
	case c.DrawWidth < 0 || c.DrawHeight < 0:
		return errors.Newf("draw size %dx%d must not be negative", c.DrawWidth, c.DrawHeight)
	case (c.DrawWidth == 0) != (c.DrawHeight == 0):
		return errors.Newf("draw size %dx%d must set both dimensions or none",
			c.DrawWidth, c.DrawHeight)
	case c.FramesInFlight < 1:
		return errors.Newf("frames in flight must be at least 1, got %d", c.FramesInFlight)
	case c.FenceTimeout <= 0:
		return errors.Newf("fence timeout must be positive, got %s", c.FenceTimeout)
	case c.ShaderPath == "":
		return errors.New("shader path must not be empty")
	}

	switch c.PresentMode {
	case PresentFifo, PresentMailbox, PresentImmediate:
	default:
		return errors.Newf("unknown present mode %q", c.PresentMode)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}

	return nil
}

// Level returns the parsed LogLevel. It falls back to info for values which
// did not pass Validate.
func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func envInt(key string, def int) (int, error) {
	raw := envy.Get(key, strconv.Itoa(def))
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", key)
	}
	return val, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := envy.Get(key, strconv.FormatBool(def))
	val, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, errors.Wrapf(err, "parsing %s", key)
	}
	return val, nil
}
