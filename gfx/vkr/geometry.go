// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/model"
	"github.com/pkg/errors"
)

var _ gfx.Releasable = (*Geometry)(nil)

// Geometry is a mesh uploaded to the device together with its bound
// material. It draws with a pipeline it does not own.
type Geometry struct {
	Name     string
	Vertices *gfx.VertexBuffer
	Indices  *gfx.IndexBuffer
	Material MaterialSet
	Pipeline PipelineID

	alloc  *Allocator
	binder *MaterialBinder
}

// NewGeometry uploads mesh and binds material for drawing with pipeline.
func NewGeometry(alloc *Allocator, binder *MaterialBinder, mesh *model.Mesh, material *model.Material, pipeline PipelineID) (*Geometry, error) {
	if len(mesh.Vertices) == 0 {
		return nil, errors.Errorf("vkr: mesh %s has no vertices", mesh.Name)
	}
	g := &Geometry{
		Name:     mesh.Name,
		Pipeline: pipeline,
		alloc:    alloc,
		binder:   binder,
		Vertices: &gfx.VertexBuffer{Layout: model.Layout()},
	}

	if err := alloc.CreateVertexBuffer(g.Vertices, mesh.VertexBytes()); err != nil {
		return nil, errors.Wrapf(err, "mesh %s vertices", mesh.Name)
	}
	if len(mesh.Indices) > 0 {
		g.Indices = &gfx.IndexBuffer{Type: gfx.IndexUint32}
		if err := alloc.CreateIndexBuffer(g.Indices, mesh.IndexBytes()); err != nil {
			g.Release()
			return nil, errors.Wrapf(err, "mesh %s indices", mesh.Name)
		}
	}

	if material == nil {
		material = &model.Material{Name: mesh.Name, Factors: model.DefaultFactors()}
	}
	set, err := binder.Bind(material)
	if err != nil {
		g.Release()
		return nil, err
	}
	g.Material = set
	return g, nil
}

// Release frees the vertex, index and material buffers.
func (g *Geometry) Release() {
	if g.Vertices != nil && g.Vertices.Created() {
		g.alloc.Release(g.Vertices)
	}
	if g.Indices != nil && g.Indices.Created() {
		g.alloc.Release(g.Indices)
	}
	g.binder.Release(&g.Material)
}
