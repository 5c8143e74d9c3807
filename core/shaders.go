// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/devblok/kiln/gfx/vkr"
	"github.com/devblok/kiln/utility/kar"
)

const shaderSuffix = ".spv"

// ShaderFile is a compiled shader found in a source.
type ShaderFile struct {
	// Name is what pipelines ask for, e.g. "forward.vert".
	Name string
	Type ShaderType
}

// ParseShaderName splits a compiled shader file name. It is important
// that the name does not contain more than two dots: the first part is
// the name of the shader, the second its type, and the .spv suffix
// ensures it is compiled.
func ParseShaderName(file string) (ShaderFile, bool) {
	base := filepath.Base(filepath.FromSlash(file))
	if !strings.HasSuffix(base, shaderSuffix) {
		return ShaderFile{}, false
	}
	nodes := strings.Split(strings.TrimSuffix(base, shaderSuffix), ".")
	if len(nodes) != 2 {
		return ShaderFile{}, false
	}

	shader := ShaderFile{Name: strings.Join(nodes, ".")}
	switch nodes[1] {
	case "vert":
		shader.Type = VertexShaderType
	case "frag":
		shader.Type = FragmentShaderType
	case "comp":
		shader.Type = ComputeShaderType
	default:
		return ShaderFile{}, false
	}
	return shader, true
}

func fileName(name string) string {
	if strings.HasSuffix(name, shaderSuffix) {
		return name
	}
	return name + shaderSuffix
}

func listShaders(files []string) []ShaderFile {
	var shaders []ShaderFile
	for _, f := range files {
		if s, ok := ParseShaderName(f); ok {
			shaders = append(shaders, s)
		}
	}
	sort.Slice(shaders, func(i, j int) bool { return shaders[i].Name < shaders[j].Name })
	return shaders
}

// ShaderSource is a vkr.ShaderSource that can list its shaders.
type ShaderSource interface {
	vkr.ShaderSource
	Shaders() ([]ShaderFile, error)
}

// DirSource reads shaders from a directory.
type DirSource struct {
	Dir string
}

// ReadAll implements vkr.ShaderSource
func (d DirSource) ReadAll(name string) ([]byte, error) {
	data, err := ioutil.ReadFile(filepath.Join(d.Dir, filepath.FromSlash(fileName(name))))
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}
	return data, nil
}

// Shaders lists the compiled shaders directly in the directory.
func (d DirSource) Shaders() ([]ShaderFile, error) {
	infos, err := ioutil.ReadDir(d.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "shader directory")
	}
	var files []string
	for _, f := range infos {
		if f.Mode().IsRegular() {
			files = append(files, f.Name())
		}
	}
	return listShaders(files), nil
}

// ArchiveSource reads shaders from a memory mapped kar archive.
type ArchiveSource struct {
	reader  *mmap.ReaderAt
	archive *kar.Archive
}

// OpenArchiveSource maps the archive at path.
func OpenArchiveSource(path string) (*ArchiveSource, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "mmap.Open()")
	}
	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, errors.Wrapf(err, "archive %s", path)
	}
	return &ArchiveSource{reader: r, archive: ar}, nil
}

// ReadAll implements vkr.ShaderSource
func (a *ArchiveSource) ReadAll(name string) ([]byte, error) {
	data, err := a.archive.ReadAll(fileName(name))
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}
	return data, nil
}

// Shaders lists the compiled shaders in the archive.
func (a *ArchiveSource) Shaders() ([]ShaderFile, error) {
	return listShaders(a.archive.Files()), nil
}

// Close unmaps the archive.
func (a *ArchiveSource) Close() error {
	return a.reader.Close()
}

// BoxSource reads shaders from a packr box, either from disk during
// development or from the binary once packed.
type BoxSource struct {
	Box packr.Box
}

// ReadAll implements vkr.ShaderSource
func (b BoxSource) ReadAll(name string) ([]byte, error) {
	data, err := b.Box.Find(fileName(name))
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}
	return data, nil
}

// Shaders lists the compiled shaders in the box.
func (b BoxSource) Shaders() ([]ShaderFile, error) {
	return listShaders(b.Box.List()), nil
}

// OpenShaderSource opens a .kar archive or a directory.
func OpenShaderSource(path string) (ShaderSource, error) {
	if strings.HasSuffix(path, ".kar") {
		return OpenArchiveSource(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "shader source")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("shader source %s is neither a directory nor a .kar archive", path)
	}
	return DirSource{Dir: path}, nil
}
