package main

import (
	"testing"

	"wurmple/config"

	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestStopWithoutGLFW(t *testing.T) {
	g := NewWithT(t)

	log, _ := test.NewNullLogger()
	app := newApp(config.Default(), log)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		app.Stop()
	}()

	g.Eventually(app.stopping).Should(BeTrue())
	g.Consistently(stopped).ShouldNot(BeClosed(), "Stop must wait for Run")

	// Run returning closes done.
	close(app.done)
	g.Eventually(stopped).Should(BeClosed())

	app.Stop()
	g.Expect(app.stopping()).To(BeTrue())
}

func TestWakeAfterTerminate(t *testing.T) {
	g := NewWithT(t)

	log, _ := test.NewNullLogger()
	app := newApp(config.Default(), log)

	app.setGLFWLive(true)
	app.setGLFWLive(false)
	g.Expect(app.wake).NotTo(Panic())
}
