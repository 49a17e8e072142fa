package config_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gobuffalo/envy"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"wurmple/config"
)

func TestDefaultIsValid(t *testing.T) {
	g := NewWithT(t)

	cfg := config.Default()
	g.Expect(cfg.Validate()).To(Succeed())
	g.Expect(cfg.FramesInFlight).To(Equal(2))
	g.Expect(cfg.ShaderPath).To(Equal("shaders/shader.spv"))
	g.Expect(cfg.PresentMode).To(Equal(config.PresentFifo))
	g.Expect(cfg.Level()).To(Equal(logrus.InfoLevel))
}

func TestLoadFromEnvironment(t *testing.T) {
	envy.Temp(func() {
		g := NewWithT(t)

		envy.Set(config.EnvWidth, "640")
		envy.Set(config.EnvFramesInFlight, "3")
		envy.Set(config.EnvFenceTimeout, "250ms")
		envy.Set(config.EnvPresentMode, "MAILBOX")
		envy.Set(config.EnvDebug, "true")
		envy.Set(config.EnvLogLevel, "debug")

		cfg, err := config.Load("")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(cfg.Width).To(Equal(640))
		g.Expect(cfg.Height).To(Equal(config.Default().Height))
		g.Expect(cfg.FramesInFlight).To(Equal(3))
		g.Expect(cfg.FenceTimeout).To(Equal(250 * time.Millisecond))
		g.Expect(cfg.PresentMode).To(Equal(config.PresentMailbox))
		g.Expect(cfg.Debug).To(BeTrue())
		g.Expect(cfg.Level()).To(Equal(logrus.DebugLevel))
		g.Expect(cfg.Validate()).To(Succeed())
	})
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	for _, key := range []string{
		config.EnvWidth, config.EnvDebug, config.EnvFenceTimeout, config.EnvDrawHeight,
	} {
		t.Run(key, func(t *testing.T) {
			envy.Temp(func() {
				g := NewWithT(t)
				envy.Set(key, "not-a-value")

				_, err := config.Load("")
				g.Expect(err).To(MatchError(ContainSubstring(key)))
			})
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	envy.Temp(func() {
		g := NewWithT(t)

		envy.Set(config.EnvHeight, "500")

		path := filepath.Join(t.TempDir(), "wurmple.env")
		content := config.EnvTitle + "=from-file\n" + config.EnvHeight + "=900\n"
		g.Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

		cfg, err := config.Load(path)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(cfg.Title).To(Equal("from-file"))
		g.Expect(cfg.Height).To(Equal(500), "the environment wins over the file")
	})
}

func TestLoadMissingEnvFile(t *testing.T) {
	g := NewWithT(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	g.Expect(err).To(HaveOccurred())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"zero width", func(c *config.Config) { c.Width = 0 }},
		{"negative height", func(c *config.Config) { c.Height = -1 }},
		{"no frames", func(c *config.Config) { c.FramesInFlight = 0 }},
		{"zero timeout", func(c *config.Config) { c.FenceTimeout = 0 }},
		{"empty shader", func(c *config.Config) { c.ShaderPath = "" }},
		{"unknown present mode", func(c *config.Config) { c.PresentMode = "vsync" }},
		{"bad log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"half draw size", func(c *config.Config) { c.DrawWidth = 100 }},
		{"negative draw size", func(c *config.Config) { c.DrawWidth, c.DrawHeight = -1, -1 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := NewWithT(t)
			cfg := config.Default()
			test.modify(&cfg)
			g.Expect(cfg.Validate()).NotTo(Succeed())
		})
	}
}

func TestRegisterFlags(t *testing.T) {
	g := NewWithT(t)

	cfg := config.Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	err := fs.Parse([]string{"-debug", "-frames", "3", "-present-mode", "immediate"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Debug).To(BeTrue())
	g.Expect(cfg.FramesInFlight).To(Equal(3))
	g.Expect(cfg.PresentMode).To(Equal(config.PresentImmediate))
	g.Expect(cfg.Width).To(Equal(config.Default().Width))
}
