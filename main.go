package main

import (
	"flag"
	"runtime"
	"sync"

	"wurmple/config"
	"wurmple/engine"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gobuffalo/envy"
	"github.com/sirupsen/logrus"
	"github.com/xlab/closer"
)

func init() {
	// This is needed to arrange that main() runs on main thread.
	// See documentation for functions that are only allowed to be called
	// from the main thread.
	runtime.LockOSThread()
}

func main() {
	defer closer.Close()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(envy.Get(config.EnvFile, ""))
	if err != nil {
		log.WithError(err).Fatal("Loading configuration")
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	log.SetLevel(cfg.Level())

	app := newApp(cfg, log)
	closer.Bind(app.Stop)

	if err := app.Run(); err != nil {
		log.WithError(err).Error("Exiting")
		closer.Exit(1)
	}
}

// App owns the window and drives the engine from the main thread.
type App struct {
	cfg config.Config
	log logrus.FieldLogger

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	// glfwLive is set while GLFW is initialized, wakeups are only posted
	// then.
	glfwMu   sync.Mutex
	glfwLive bool
}

func newApp(cfg config.Config, log logrus.FieldLogger) *App {
	return &App{
		cfg:  cfg,
		log:  log,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run opens the window and draws frames until it is closed or Stop is
// called. Everything is released before Run returns.
func (a *App) Run() error {
	defer close(a.done)

	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw.Init")
	}
	a.setGLFWLive(true)
	defer func() {
		a.setGLFWLive(false)
		glfw.Terminate()
	}()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	window, err := glfw.CreateWindow(a.cfg.Width, a.cfg.Height, a.cfg.Title, nil, nil)
	if err != nil {
		return errors.Wrap(err, "creating window")
	}
	defer window.Destroy()

	eng, err := engine.New(a.cfg, window, a.log)
	if err != nil {
		return errors.Wrap(err, "initVulkan")
	}
	defer eng.Cleanup()

	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		eng.Resized()
	})

	if err := a.mainLoop(window, eng); err != nil {
		return errors.Wrap(err, "mainLoop")
	}

	stats := eng.Stats()
	a.log.WithFields(logrus.Fields{
		"frames":   stats.Frames,
		"rebuilds": stats.Rebuilds,
	}).Info("Window closed")

	return nil
}

func (a *App) mainLoop(window *glfw.Window, eng *engine.Engine) error {
	a.log.Debug("Entering main loop")

	for !window.ShouldClose() {
		if a.stopping() {
			return nil
		}

		if err := eng.Draw(); err != nil {
			if engine.IsFatal(err) {
				return errors.Wrap(err, "error drawing a frame")
			}
			a.log.WithError(err).Warn("Frame dropped")
		}

		glfw.PollEvents()

		// Nothing can be presented while minimized.
		for width, height := window.GetFramebufferSize(); width == 0 || height == 0; width, height = window.GetFramebufferSize() {
			glfw.WaitEvents()
			if window.ShouldClose() || a.stopping() {
				return nil
			}
		}
	}

	return nil
}

// Stop asks Run to return and waits until it did. It may be called from any
// goroutine, any number of times.
func (a *App) Stop() {
	a.quitOnce.Do(func() {
		close(a.quit)
	})

	select {
	case <-a.done:
		return
	default:
		a.wake()
	}
	<-a.done
}

// wake interrupts glfw.WaitEvents in case the loop waits for events.
func (a *App) wake() {
	a.glfwMu.Lock()
	defer a.glfwMu.Unlock()

	if a.glfwLive {
		glfw.PostEmptyEvent()
	}
}

func (a *App) setGLFWLive(live bool) {
	a.glfwMu.Lock()
	a.glfwLive = live
	a.glfwMu.Unlock()
}

func (a *App) stopping() bool {
	select {
	case <-a.quit:
		return true
	default:
		return false
	}
}
