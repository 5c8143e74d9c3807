// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kiln renders a mesh through a two subpass render pass while a
// compute pass animates it.
package main

import (
	"encoding/binary"
	"flag"
	"io"
	"math"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kiln/core"
	"github.com/devblok/kiln/gfx/vkr"
	"github.com/devblok/kiln/platform"
)

func init() {
	runtime.LockOSThread()
}

var (
	envFile    = flag.String("env", ".env", "Environment file with KILN_* settings")
	meshFile   = flag.String("mesh", "", "Collada file to render instead of the built-in quad")
	texture    = flag.String("texture", "", "Albedo texture for the mesh")
	frames     = flag.Uint64("frames", 0, "Exit after this many frames, 0 runs until closed")
	cpuProfile = flag.String("cpuprofile", "", "Write a cpu profile to file")
	traceFile  = flag.String("trace", "", "Write an execution trace to file")
)

//go:generate glslangValidator -V assets/src/geometry.vert -o assets/geometry.vert.spv
//go:generate glslangValidator -V assets/src/geometry.frag -o assets/geometry.frag.spv
//go:generate glslangValidator -V assets/src/fullscreen.vert -o assets/fullscreen.vert.spv
//go:generate glslangValidator -V assets/src/composite.frag -o assets/composite.frag.spv
//go:generate glslangValidator -V assets/src/simulate.comp -o assets/simulate.comp.spv

// Built-in shaders, used when KILN_SHADERS does not exist.
var assets = packr.NewBox("./assets")

func main() {
	flag.Parse()

	cfg, err := core.LoadConfiguration(*envFile)
	if err != nil {
		log.Fatal(err)
	}
	cfg.Log.Apply(log.StandardLogger())

	if *cpuProfile != "" {
		stop, err := profile(*cpuProfile, pprof.StartCPUProfile, pprof.StopCPUProfile)
		if err != nil {
			log.Fatal(err)
		}
		defer stop()
	}
	if *traceFile != "" {
		stop, err := profile(*traceFile, trace.Start, trace.Stop)
		if err != nil {
			log.Fatal(err)
		}
		defer stop()
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func profile(path string, start func(w io.Writer) error, stop func()) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := start(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		stop()
		f.Close()
	}, nil
}

func shaderSource(path string) (core.ShaderSource, error) {
	if _, err := os.Stat(path); err != nil {
		log.WithField("shaders", path).Info("using built-in shaders")
		return core.BoxSource{Box: assets}, nil
	}
	return core.OpenShaderSource(path)
}

func run(cfg core.Configuration) error {
	entry := log.WithField("app", "kiln")

	window, err := platform.Open(cfg.Window)
	if err != nil {
		return err
	}
	defer window.Destroy()

	instanceCfg := cfg.Instance
	instanceCfg.Extensions = append(window.InstanceExtensions(), instanceCfg.Extensions...)
	instance, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, window.ProcAddr(), instanceCfg, entry)
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := window.CreateSurface(instance.Inner())
	if err != nil {
		return err
	}
	instance.SetSurface(surface)

	gpu, err := vkr.SelectDevice(instance.AvailableDevices(), instance.Surface(), entry)
	if err != nil {
		return err
	}
	driver, err := vkr.NewVulkanDriver(gpu, instance.Surface(), cfg.Renderer.Device(), entry)
	if err != nil {
		return err
	}

	shaders, err := shaderSource(cfg.Renderer.Shaders)
	if err != nil {
		return err
	}
	if closer, ok := shaders.(*core.ArchiveSource); ok {
		defer closer.Close()
	}

	r, err := newRenderer(driver, window, shaders, cfg, entry)
	if err != nil {
		return err
	}
	defer r.destroy()

	s, err := newScene(r, *meshFile, *texture)
	if err != nil {
		return err
	}
	defer func() {
		r.device.WaitIdle()
		s.destroy(r)
	}()

	tm := core.NewTime(cfg.Time)
	defer tm.Stop()

	for !window.ShouldClose() {
		select {
		case <-tm.EventTicker().C:
			window.PollEvents()
			if window.Resized() {
				r.pres.Invalidate()
			}
		case <-tm.FpsTicker().C:
			if err := r.frame(s, tm.Tick()); err != nil {
				return err
			}
			if *frames > 0 && r.device.Frame() >= *frames {
				return r.device.WaitIdle()
			}
		}
	}
	entry.WithField("frames", r.device.Frame()).Info("window closed")
	return r.device.WaitIdle()
}

func float32Bytes(f float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	return b[:]
}
