// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/envy"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kiln/core"
	"github.com/devblok/kiln/gfx"
)

func env(values map[string]string) func(key, value string) string {
	return func(key, value string) string {
		if v, ok := values[key]; ok {
			return v
		}
		return value
	}
}

func TestDefaultConfiguration(t *testing.T) {
	c := qt.New(t)
	cfg, err := core.ParseConfiguration(env(nil))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, core.DefaultConfiguration())

	c.Assert(cfg.Renderer.FramesInFlight, qt.Equals, 2)
	c.Assert(cfg.Renderer.SwapchainImages, qt.Equals, uint32(2))
	c.Assert(cfg.Window.Extent(), qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
	c.Assert(cfg.Window.Backend, qt.Equals, "sdl")

	pres := cfg.Renderer.Presentation()
	c.Assert(pres.PresentMode, qt.Equals, gfx.PresentFifo)
	c.Assert(pres.Format.Format, qt.Equals, gfx.FormatBGRA8Srgb)
	c.Assert(pres.Samples, qt.Equals, gfx.Samples1)
	c.Assert(cfg.Renderer.Context().FramesInFlight, qt.Equals, 2)
}

func TestParseConfiguration(t *testing.T) {
	c := qt.New(t)
	cfg, err := core.ParseConfiguration(env(map[string]string{
		"KILN_FRAMES_IN_FLIGHT":  "3",
		"KILN_SWAPCHAIN_IMAGES":  "4",
		"KILN_PRESENT_MODE":      "Mailbox",
		"KILN_SURFACE_FORMAT":    "rgba8_unorm",
		"KILN_MSAA":              "4",
		"KILN_SHADERS":           "assets/shaders.kar",
		"KILN_VALIDATION":        "true",
		"KILN_WINDOW":            "glfw",
		"KILN_WIDTH":             "1280",
		"KILN_HEIGHT":            "720",
		"KILN_FPS":               "0",
		"KILN_LOG_LEVEL":         "debug",
		"KILN_LOG_FORMAT":        "json",
		"KILN_DEVICE_EXTENSIONS": "VK_KHR_maintenance1, VK_KHR_multiview",
	}))
	c.Assert(err, qt.IsNil)

	c.Assert(cfg.Renderer.FramesInFlight, qt.Equals, 3)
	c.Assert(cfg.Renderer.SwapchainImages, qt.Equals, uint32(4))
	c.Assert(cfg.Renderer.PresentMode, qt.Equals, gfx.PresentMailbox)
	c.Assert(cfg.Renderer.SurfaceFormat, qt.Equals, gfx.FormatRGBA8Unorm)
	c.Assert(cfg.Renderer.Samples, qt.Equals, gfx.Samples4)
	c.Assert(cfg.Renderer.Shaders, qt.Equals, "assets/shaders.kar")
	c.Assert(cfg.Renderer.Device().Extensions, qt.DeepEquals, []string{"VK_KHR_maintenance1", "VK_KHR_multiview"})
	c.Assert(cfg.Instance.Validation, qt.IsTrue)
	c.Assert(cfg.Window.Backend, qt.Equals, "glfw")
	c.Assert(cfg.Window.Extent(), qt.Equals, gfx.Extent2D{Width: 1280, Height: 720})
	c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 0)
	c.Assert(cfg.Log.Level, qt.Equals, log.DebugLevel)
	c.Assert(cfg.Log.Format, qt.Equals, "json")
}

func TestInvalidConfiguration(t *testing.T) {
	c := qt.New(t)
	for key, value := range map[string]string{
		"KILN_FRAMES_IN_FLIGHT": "0",
		"KILN_SWAPCHAIN_IMAGES": "two",
		"KILN_PRESENT_MODE":     "vsync",
		"KILN_SURFACE_FORMAT":   "d32_float",
		"KILN_MSAA":             "3",
		"KILN_VALIDATION":       "maybe",
		"KILN_WINDOW":           "gtk",
		"KILN_WIDTH":            "-1",
		"KILN_LOG_LEVEL":        "loud",
		"KILN_LOG_FORMAT":       "xml",
	} {
		_, err := core.ParseConfiguration(env(map[string]string{key: value}))
		c.Assert(errors.Cause(err), qt.Equals, core.ErrConfiguration, qt.Commentf(key))
		c.Assert(err, qt.ErrorMatches, key+`=".*": invalid configuration`)
	}
}

func TestLoadConfiguration(t *testing.T) {
	c := qt.New(t)
	dotenv := filepath.Join(t.TempDir(), ".env")
	c.Assert(ioutil.WriteFile(dotenv, []byte("KILN_WIDTH=1024\nKILN_PRESENT_MODE=immediate\n"), 0644), qt.IsNil)
	c.Cleanup(func() {
		os.Unsetenv("KILN_WIDTH")
		os.Unsetenv("KILN_PRESENT_MODE")
		envy.Reload()
	})

	cfg, err := core.LoadConfiguration(dotenv, filepath.Join(t.TempDir(), "missing.env"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Window.Width, qt.Equals, uint32(1024))
	c.Assert(cfg.Window.Height, qt.Equals, uint32(600))
	c.Assert(cfg.Renderer.PresentMode, qt.Equals, gfx.PresentImmediate)
}

func TestLogConfiguration(t *testing.T) {
	c := qt.New(t)
	logger := log.New()

	core.LogConfiguration{Level: log.WarnLevel, Format: "json"}.Apply(logger)
	c.Assert(logger.Level, qt.Equals, log.WarnLevel)
	_, ok := logger.Formatter.(*log.JSONFormatter)
	c.Assert(ok, qt.IsTrue)

	core.LogConfiguration{Level: log.DebugLevel, Format: "text"}.Apply(logger)
	_, ok = logger.Formatter.(*log.TextFormatter)
	c.Assert(ok, qt.IsTrue)
}
