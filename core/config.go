// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"os"
	"strconv"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/gfx/vkr"
)

// ErrConfiguration is returned for values that cannot be used.
var ErrConfiguration = errors.New("invalid configuration")

// Configuration defines a global engine configuration setting
type Configuration struct {
	Log      LogConfiguration
	Time     TimeConfiguration
	Instance InstanceConfiguration
	Renderer RendererConfiguration
	Window   WindowConfiguration
}

// LogConfiguration sets up the standard logger.
type LogConfiguration struct {
	Level log.Level

	// Format is either "text" or "json".
	Format string
}

// Apply configures logger.
func (l LogConfiguration) Apply(logger *log.Logger) {
	logger.SetLevel(l.Level)
	if l.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls in milliseconds.
	EventPollDelay int
}

// InstanceConfiguration is used to create the Vulkan instance.
type InstanceConfiguration struct {
	// Validation enables the validation layers and debug reporting.
	Validation bool
	Extensions []string
	Layers     []string
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	FramesInFlight   int
	SwapchainImages  uint32
	PresentMode      gfx.PresentMode
	SurfaceFormat    gfx.Format
	Samples          gfx.SampleCount
	DeviceExtensions []string

	// Shaders is a directory or a .kar archive of compiled shaders.
	Shaders string
}

// Context returns the renderer context settings.
func (r RendererConfiguration) Context() vkr.ContextConfig {
	return vkr.ContextConfig{FramesInFlight: r.FramesInFlight}
}

// Presentation returns the swapchain preferences.
func (r RendererConfiguration) Presentation() vkr.PresentationConfig {
	return vkr.PresentationConfig{
		ImageCount:  r.SwapchainImages,
		PresentMode: r.PresentMode,
		Format:      vkr.SurfaceFormat{Format: r.SurfaceFormat, ColorSpace: gfx.ColorSpaceSRGBNonlinear},
		Samples:     r.Samples,
	}
}

// Device returns the logical device settings.
func (r RendererConfiguration) Device() vkr.DeviceConfig {
	return vkr.DeviceConfig{Extensions: r.DeviceExtensions}
}

// WindowConfiguration describes the window that is presented to.
type WindowConfiguration struct {
	// Backend is either "sdl" or "glfw".
	Backend string
	Title   string
	Width   uint32
	Height  uint32
}

// Extent is the requested window size.
func (w WindowConfiguration) Extent() gfx.Extent2D {
	return gfx.Extent2D{Width: w.Width, Height: w.Height}
}

// DefaultConfiguration is used for anything the environment leaves unset.
func DefaultConfiguration() Configuration {
	return Configuration{
		Log: LogConfiguration{
			Level:  log.InfoLevel,
			Format: "text",
		},
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  10,
		},
		Renderer: RendererConfiguration{
			FramesInFlight:  2,
			SwapchainImages: 2,
			PresentMode:     gfx.PresentFifo,
			SurfaceFormat:   gfx.FormatBGRA8Srgb,
			Samples:         gfx.Samples1,
			Shaders:         "./shaders",
		},
		Window: WindowConfiguration{
			Backend: "sdl",
			Title:   "Kiln",
			Width:   800,
			Height:  600,
		},
	}
}

// LoadConfiguration loads the given .env files, skipping missing ones,
// and reads the KILN_* variables on top of DefaultConfiguration.
// Variables already in the environment win over the files.
func LoadConfiguration(files ...string) (Configuration, error) {
	var found []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			found = append(found, f)
		}
	}
	if len(found) > 0 {
		if err := godotenv.Load(found...); err != nil {
			return Configuration{}, errors.Wrap(err, "godotenv.Load()")
		}
	}
	envy.Reload()
	return ParseConfiguration(envy.Get)
}

// ParseConfiguration builds a configuration from a key lookup with defaults,
// the shape of envy.Get.
func ParseConfiguration(get func(key, value string) string) (Configuration, error) {
	cfg := DefaultConfiguration()
	p := parser{get: get}

	cfg.Log.Level = p.level("KILN_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = p.oneOf("KILN_LOG_FORMAT", cfg.Log.Format, "text", "json")

	cfg.Time.FramesPerSecond = p.integer("KILN_FPS", cfg.Time.FramesPerSecond, 0)
	cfg.Time.EventPollDelay = p.integer("KILN_EVENT_POLL", cfg.Time.EventPollDelay, 1)

	cfg.Instance.Validation = p.boolean("KILN_VALIDATION", cfg.Instance.Validation)

	cfg.Renderer.FramesInFlight = p.integer("KILN_FRAMES_IN_FLIGHT", cfg.Renderer.FramesInFlight, 1)
	cfg.Renderer.SwapchainImages = uint32(p.integer("KILN_SWAPCHAIN_IMAGES", int(cfg.Renderer.SwapchainImages), 1))
	cfg.Renderer.PresentMode = p.presentMode("KILN_PRESENT_MODE", cfg.Renderer.PresentMode)
	cfg.Renderer.SurfaceFormat = p.surfaceFormat("KILN_SURFACE_FORMAT", cfg.Renderer.SurfaceFormat)
	cfg.Renderer.Samples = p.samples("KILN_MSAA", cfg.Renderer.Samples)
	cfg.Renderer.Shaders = get("KILN_SHADERS", cfg.Renderer.Shaders)
	cfg.Renderer.DeviceExtensions = p.list("KILN_DEVICE_EXTENSIONS")

	cfg.Window.Backend = p.oneOf("KILN_WINDOW", cfg.Window.Backend, "sdl", "glfw")
	cfg.Window.Title = get("KILN_TITLE", cfg.Window.Title)
	cfg.Window.Width = uint32(p.integer("KILN_WIDTH", int(cfg.Window.Width), 1))
	cfg.Window.Height = uint32(p.integer("KILN_HEIGHT", int(cfg.Window.Height), 1))

	if p.err != nil {
		return Configuration{}, p.err
	}
	return cfg, nil
}

// parser keeps the first error, later lookups become no-ops.
type parser struct {
	get func(key, value string) string
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v := strings.TrimSpace(p.get(key, ""))
	return v, v != ""
}

func (p *parser) fail(key, value string) {
	p.err = errors.Wrapf(ErrConfiguration, "%s=%q", key, value)
}

func (p *parser) integer(key string, def, min int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		p.fail(key, v)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return b
}

func (p *parser) oneOf(key, def string, values ...string) string {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	v = strings.ToLower(v)
	for _, allowed := range values {
		if v == allowed {
			return v
		}
	}
	p.fail(key, v)
	return def
}

func (p *parser) list(key string) []string {
	v, ok := p.lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *parser) level(key string, def log.Level) log.Level {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	l, err := log.ParseLevel(v)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return l
}

func (p *parser) presentMode(key string, def gfx.PresentMode) gfx.PresentMode {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	m, found := gfx.ParsePresentMode(strings.ToLower(v))
	if !found {
		p.fail(key, v)
		return def
	}
	return m
}

func (p *parser) surfaceFormat(key string, def gfx.Format) gfx.Format {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	switch f, _ := gfx.ParseFormat(strings.ToLower(v)); f {
	case gfx.FormatBGRA8Srgb, gfx.FormatBGRA8Unorm, gfx.FormatRGBA8Srgb, gfx.FormatRGBA8Unorm:
		return f
	}
	p.fail(key, v)
	return def
}

func (p *parser) samples(key string, def gfx.SampleCount) gfx.SampleCount {
	switch n := p.integer(key, int(def), 1); n {
	case 1, 2, 4, 8:
		return gfx.SampleCount(n)
	default:
		p.fail(key, strconv.Itoa(n))
		return def
	}
}
