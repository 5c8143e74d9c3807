// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"encoding/xml"

	"github.com/devblok/kiln/util/collada"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// ImportCollada reads given file and converts the first geometry
// into an indexed Mesh.
func ImportCollada(fileContents []byte) (*Mesh, error) {
	doc, err := decodeCollada(fileContents)
	if err != nil {
		return nil, err
	}
	return convertGeometry(&doc.Geometries[0])
}

// ImportColladaGeometry converts the geometry with the given id or name.
func ImportColladaGeometry(fileContents []byte, name string) (*Mesh, error) {
	doc, err := decodeCollada(fileContents)
	if err != nil {
		return nil, err
	}
	for i := range doc.Geometries {
		if doc.Geometries[i].ID == name || doc.Geometries[i].Name == name {
			return convertGeometry(&doc.Geometries[i])
		}
	}
	return nil, errors.Errorf("collada: geometry %q not found", name)
}

func decodeCollada(fileContents []byte) (*collada.Collada, error) {
	var doc collada.Collada
	if err := xml.Unmarshal(fileContents, &doc); err != nil {
		return nil, errors.Wrap(err, "collada: decode")
	}
	if len(doc.Geometries) == 0 {
		return nil, errors.New("collada: no geometries")
	}
	return &doc, nil
}

type corner struct {
	position, normal, uv int
}

// convertGeometry flattens all triangle groups and merges identical
// position/normal/uv corners into one vertex.
func convertGeometry(g *collada.Geometry) (*Mesh, error) {
	mesh := &g.Mesh
	out := &Mesh{Name: g.Name}
	if out.Name == "" {
		out.Name = g.ID
	}

	posInput, ok := mesh.Vertices.Input(collada.SemanticPosition)
	if !ok {
		return nil, errors.Errorf("collada: %s: vertices without POSITION", out.Name)
	}
	positions, ok := mesh.SourceByRef(posInput.Source)
	if !ok {
		return nil, errors.Errorf("collada: %s: missing source %s", out.Name, posInput.Source)
	}

	seen := make(map[corner]uint32)
	for ti := range mesh.Triangles {
		tris := &mesh.Triangles[ti]
		if out.Material == "" {
			out.Material = tris.Material
		}

		vertIn, ok := tris.Input(collada.SemanticVertex)
		if !ok {
			return nil, errors.Errorf("collada: %s: triangles without VERTEX", out.Name)
		}
		normIn, hasNormal := tris.Input(collada.SemanticNormal)
		uvIn, hasUV := tris.Input(collada.SemanticTexcoord)

		var normals, uvs *collada.Source
		if hasNormal {
			if normals, ok = mesh.SourceByRef(normIn.Source); !ok {
				return nil, errors.Errorf("collada: %s: missing source %s", out.Name, normIn.Source)
			}
		}
		if hasUV {
			if uvs, ok = mesh.SourceByRef(uvIn.Source); !ok {
				return nil, errors.Errorf("collada: %s: missing source %s", out.Name, uvIn.Source)
			}
		}

		stride := tris.Stride()
		if stride == 0 || len(tris.Index)%stride != 0 {
			return nil, errors.Errorf("collada: %s: index list does not match inputs", out.Name)
		}

		for i := 0; i < len(tris.Index); i += stride {
			c := corner{position: tris.Index[i+int(vertIn.Offset)], normal: -1, uv: -1}
			if hasNormal {
				c.normal = tris.Index[i+int(normIn.Offset)]
			}
			if hasUV {
				c.uv = tris.Index[i+int(uvIn.Offset)]
			}

			if idx, ok := seen[c]; ok {
				out.Indices = append(out.Indices, idx)
				continue
			}

			var vert Vertex
			p := positions.Element(c.position)
			if len(p) < 3 {
				return nil, errors.Errorf("collada: %s: position %d out of range", out.Name, c.position)
			}
			vert.Pos = glm.Vec3{p[0], p[1], p[2]}
			if hasNormal {
				if n := normals.Element(c.normal); len(n) >= 3 {
					vert.Normal = glm.Vec3{n[0], n[1], n[2]}
				}
			}
			if hasUV {
				// Collada has the origin at the bottom left.
				if uv := uvs.Element(c.uv); len(uv) >= 2 {
					vert.UV = glm.Vec2{uv[0], 1 - uv[1]}
				}
			}

			idx := uint32(len(out.Vertices))
			seen[c] = idx
			out.Vertices = append(out.Vertices, vert)
			out.Indices = append(out.Indices, idx)
		}
	}

	return out, nil
}
