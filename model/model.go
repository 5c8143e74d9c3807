// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"encoding/binary"
	"math"
	"sync"
	"unsafe"

	"github.com/devblok/kiln/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Vertex is a model vertex
type Vertex struct {
	Pos    glm.Vec3
	Normal glm.Vec3
	UV     glm.Vec2
}

// VertexSize is the size of one interleaved vertex in bytes.
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

// Layout returns the vertex layout pipelines use to read Vertex data,
// so it has to match the struct exactly.
func Layout() gfx.VertexLayout {
	return gfx.VertexLayout{
		Stride: VertexSize,
		Attributes: []gfx.VertexAttribute{
			{
				Location: 0,
				Format:   gfx.FormatRGB32Float,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
			},
			{
				Location: 1,
				Format:   gfx.FormatRGB32Float,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.Normal)),
			},
			{
				Location: 2,
				Format:   gfx.FormatRG32Float,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.UV)),
			},
		},
	}
}

// Mesh is indexed triangle geometry ready for upload.
type Mesh struct {
	Name     string
	Material string
	Vertices []Vertex
	Indices  []uint32
}

// VertexBytes packs the vertices in Layout order.
func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, 0, len(m.Vertices)*int(VertexSize))
	for _, v := range m.Vertices {
		out = appendFloats(out, v.Pos[:]...)
		out = appendFloats(out, v.Normal[:]...)
		out = appendFloats(out, v.UV[:]...)
	}
	return out
}

// IndexBytes packs the indices as 32-bit values.
func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, 4*len(m.Indices))
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[4*i:], idx)
	}
	return out
}

// Uniform is the per-frame camera data bound at slot 0, binding 0.
type Uniform struct {
	View       glm.Mat4
	Projection glm.Mat4
	Eye        glm.Vec4
}

// UniformSize is the size of Uniform on the GPU.
const UniformSize = uint64(unsafe.Sizeof(Uniform{}))

// Bytes encodes the uniform.
func (u *Uniform) Bytes() []byte {
	out := make([]byte, 0, UniformSize)
	out = appendFloats(out, u.View[:]...)
	out = appendFloats(out, u.Projection[:]...)
	return appendFloats(out, u.Eye[:]...)
}

// Texture flag bits, one per material texture slot.
const (
	AlbedoFlag uint32 = 1 << iota
	MetallicRoughnessFlag
	NormalFlag
	OcclusionFlag
	EmissiveFlag
)

// MaterialTextures is the number of texture slots a material has.
const MaterialTextures = 5

// MaterialFactors are the constant PBR inputs, bound next to the
// material's textures.
type MaterialFactors struct {
	BaseColor glm.Vec4
	Emissive  glm.Vec4
	Metallic  float32
	Roughness float32
	Occlusion float32
	_         float32
}

// MaterialFactorsSize is the size of MaterialFactors on the GPU.
const MaterialFactorsSize = uint64(unsafe.Sizeof(MaterialFactors{}))

// DefaultFactors is a white dielectric.
func DefaultFactors() MaterialFactors {
	return MaterialFactors{
		BaseColor: glm.Vec4{1, 1, 1, 1},
		Metallic:  0,
		Roughness: 1,
		Occlusion: 1,
	}
}

// Bytes encodes the factors.
func (f *MaterialFactors) Bytes() []byte {
	out := make([]byte, 0, MaterialFactorsSize)
	out = appendFloats(out, f.BaseColor[:]...)
	out = appendFloats(out, f.Emissive[:]...)
	return appendFloats(out, f.Metallic, f.Roughness, f.Occlusion, 0)
}

// Material is a PBR material. Textures are indexed by slot: albedo,
// metallic-roughness, normal, occlusion and emissive. Nil slots are absent.
type Material struct {
	Name     string
	Factors  MaterialFactors
	Textures [MaterialTextures]*gfx.Texture
}

// Flags returns the texture flag word: bit i is set when slot i is present.
func (m *Material) Flags() uint32 {
	var flags uint32
	for i, t := range m.Textures {
		if t != nil {
			flags |= 1 << uint(i)
		}
	}
	return flags
}

// Push constant layout shared with the shaders.
const (
	VertexPushSize     = 128
	FragmentPushOffset = 128
	FragmentPushSize   = 4
)

// PushConstants is the per-draw inline data. The field order is part of the
// shader interface: world, inverse-transpose world, texture flags.
type PushConstants struct {
	World                 glm.Mat4
	InverseTransposeWorld glm.Mat4
	TextureFlags          uint32
}

// NewPushConstants derives the normal matrix from world.
func NewPushConstants(world glm.Mat4, flags uint32) PushConstants {
	return PushConstants{
		World:                 world,
		InverseTransposeWorld: world.Inv().Transpose(),
		TextureFlags:          flags,
	}
}

// VertexBytes is the vertex stage range [0,128).
func (p *PushConstants) VertexBytes() []byte {
	out := make([]byte, 0, VertexPushSize)
	out = appendFloats(out, p.World[:]...)
	return appendFloats(out, p.InverseTransposeWorld[:]...)
}

// FragmentBytes is the fragment stage range [128,132).
func (p *PushConstants) FragmentBytes() []byte {
	out := make([]byte, FragmentPushSize)
	binary.LittleEndian.PutUint32(out, p.TextureFlags)
	return out
}

// Object is a mesh placed in the world.
// Transform accessors are thread-safe.
type Object struct {
	Mesh *Mesh

	mutex    sync.RWMutex
	position glm.Mat4
	rotation glm.Mat4
}

// NewObject places mesh at the origin.
func NewObject(mesh *Mesh) *Object {
	return &Object{
		Mesh:     mesh,
		position: glm.Ident4(),
		rotation: glm.Ident4(),
	}
}

// SetPosition sets the object's translation matrix.
func (o *Object) SetPosition(pos glm.Mat4) {
	o.mutex.Lock()
	o.position = pos
	o.mutex.Unlock()
}

// Position gets the object's translation matrix.
func (o *Object) Position() glm.Mat4 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.position
}

// SetRotation sets the object's rotation matrix.
func (o *Object) SetRotation(rot glm.Mat4) {
	o.mutex.Lock()
	o.rotation = rot
	o.mutex.Unlock()
}

// Rotation gets the object's rotation matrix.
func (o *Object) Rotation() glm.Mat4 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.rotation
}

// World is position * rotation.
func (o *Object) World() glm.Mat4 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.position.Mul4(o.rotation)
}

func appendFloats(out []byte, fs ...float32) []byte {
	var b [4]byte
	for _, f := range fs {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		out = append(out, b[:]...)
	}
	return out
}
