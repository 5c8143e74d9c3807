// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/ioutil"
	"os"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/gfx/vkr"
	"github.com/devblok/kiln/model"
)

type scene struct {
	object   *model.Object
	geometry *vkr.Geometry
	albedo   *gfx.Texture
}

func quad() *model.Mesh {
	normal := glm.Vec3{0, 0, 1}
	return &model.Mesh{
		Name: "quad",
		Vertices: []model.Vertex{
			{Pos: glm.Vec3{-1, -1, 0}, Normal: normal, UV: glm.Vec2{0, 1}},
			{Pos: glm.Vec3{1, -1, 0}, Normal: normal, UV: glm.Vec2{1, 1}},
			{Pos: glm.Vec3{1, 1, 0}, Normal: normal, UV: glm.Vec2{1, 0}},
			{Pos: glm.Vec3{-1, 1, 0}, Normal: normal, UV: glm.Vec2{0, 0}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

func loadMesh(path string) (*model.Mesh, error) {
	if path == "" {
		return quad(), nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return model.ImportCollada(data)
}

func loadTexture(alloc *vkr.Allocator, path string) (*gfx.Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s", path)
	}
	px := gfx.PixelsFromImage(img)
	t := &gfx.Texture{
		Name:      path,
		Format:    gfx.FormatRGBA8Srgb,
		MipLevels: gfx.MaxMipLevels(px.Width, px.Height),
	}
	if err := alloc.CreateTexture(t, px); err != nil {
		return nil, err
	}
	return t, nil
}

func newScene(r *renderer, meshPath, texturePath string) (*scene, error) {
	mesh, err := loadMesh(meshPath)
	if err != nil {
		return nil, err
	}

	s := &scene{object: model.NewObject(mesh)}
	material := &model.Material{Name: mesh.Name, Factors: model.DefaultFactors()}
	if texturePath != "" {
		if s.albedo, err = loadTexture(r.alloc, texturePath); err != nil {
			return nil, err
		}
		material.Textures[0] = s.albedo
	}

	if s.geometry, err = vkr.NewGeometry(r.alloc, r.mats, mesh, material, r.pass.Pipeline(0).ID()); err != nil {
		s.destroy(r)
		return nil, err
	}
	return s, nil
}

func (s *scene) destroy(r *renderer) {
	if s.geometry != nil {
		s.geometry.Release()
	}
	if s.albedo != nil {
		r.alloc.DestroyTexture(s.albedo)
	}
}
