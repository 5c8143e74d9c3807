// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/packr"

	"github.com/devblok/kiln/core"
	"github.com/devblok/kiln/utility/kar"
)

var expectedShaders = []core.ShaderFile{
	{Name: "forward.frag", Type: core.FragmentShaderType},
	{Name: "forward.vert", Type: core.VertexShaderType},
	{Name: "simulate.comp", Type: core.ComputeShaderType},
}

func TestParseShaderName(t *testing.T) {
	c := qt.New(t)

	s, ok := core.ParseShaderName("shaders/lighting.frag.spv")
	c.Assert(ok, qt.IsTrue)
	c.Assert(s, qt.Equals, core.ShaderFile{Name: "lighting.frag", Type: core.FragmentShaderType})

	for _, name := range []string{"lighting.frag", "a.b.frag.spv", "broken.geom.spv", "README.txt"} {
		_, ok := core.ParseShaderName(name)
		c.Assert(ok, qt.IsFalse, qt.Commentf(name))
	}
	c.Assert(core.ComputeShaderType.String(), qt.Equals, "comp")
}

func TestDirSource(t *testing.T) {
	c := qt.New(t)
	src, err := core.OpenShaderSource("testdata/shaders")
	c.Assert(err, qt.IsNil)

	shaders, err := src.Shaders()
	c.Assert(err, qt.IsNil)
	c.Assert(shaders, qt.DeepEquals, expectedShaders)

	data, err := src.ReadAll("forward.vert")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 8)
	c.Assert(data[:4], qt.DeepEquals, []byte{0x03, 0x02, 0x23, 0x07})

	_, err = src.ReadAll("missing.frag")
	c.Assert(err, qt.ErrorMatches, `shader missing.frag: .*`)

	_, err = core.OpenShaderSource("testdata/shaders/README.txt")
	c.Assert(err, qt.ErrorMatches, `shader source .* is neither a directory nor a \.kar archive`)
}

func TestArchiveSource(t *testing.T) {
	c := qt.New(t)

	builder, err := kar.NewBuilder(kar.Header{Author: "kiln", Version: 1})
	c.Assert(err, qt.IsNil)
	defer builder.Close()
	c.Assert(builder.AddDir("testdata/shaders"), qt.IsNil)

	path := filepath.Join(t.TempDir(), "shaders.kar")
	f, err := os.Create(path)
	c.Assert(err, qt.IsNil)
	_, err = builder.WriteTo(f)
	c.Assert(err, qt.IsNil)
	c.Assert(f.Close(), qt.IsNil)

	src, err := core.OpenShaderSource(path)
	c.Assert(err, qt.IsNil)
	archive := src.(*core.ArchiveSource)
	defer archive.Close()

	shaders, err := src.Shaders()
	c.Assert(err, qt.IsNil)
	c.Assert(shaders, qt.DeepEquals, expectedShaders)

	data, err := src.ReadAll("forward.frag.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 12)

	_, err = src.ReadAll("missing.frag")
	c.Assert(err, qt.ErrorMatches, `shader missing.frag: .*file not found in archive`)
}

func TestOpenArchiveSourceRejectsGarbage(t *testing.T) {
	c := qt.New(t)
	_, err := core.OpenArchiveSource("testdata/shaders/README.txt")
	c.Assert(err, qt.ErrorMatches, `archive testdata/shaders/README.txt: corrupted or not a kar archive`)
}

func TestBoxSource(t *testing.T) {
	c := qt.New(t)
	src := core.BoxSource{Box: packr.NewBox("./testdata/shaders")}

	shaders, err := src.Shaders()
	c.Assert(err, qt.IsNil)
	c.Assert(shaders, qt.DeepEquals, expectedShaders)

	data, err := src.ReadAll("simulate.comp")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 4)
}
