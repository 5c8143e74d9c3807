// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"

	"github.com/devblok/kiln/gfx"
)

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// arena is an append-only table of backend objects. Freed slots are reused,
// bumping their generation so that handles to the old object go stale.
type arena[T any] struct {
	kind  string
	slots []slot[T]
	free  []uint32
}

func newArena[T any](kind string) *arena[T] {
	return &arena[T]{kind: kind}
}

func (a *arena[T]) insert(v T) gfx.Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.value, s.live = v, true
		return gfx.Handle{Index: idx, Gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{value: v, gen: 1, live: true})
	return gfx.Handle{Index: uint32(len(a.slots) - 1), Gen: 1}
}

func (a *arena[T]) lookup(h gfx.Handle) *slot[T] {
	if int(h.Index) >= len(a.slots) {
		panic(fmt.Sprintf("vkr: %s handle %d/%d out of range", a.kind, h.Index, h.Gen))
	}
	s := &a.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		panic(fmt.Sprintf("vkr: stale %s handle %d/%d (live generation %d)", a.kind, h.Index, h.Gen, s.gen))
	}
	return s
}

func (a *arena[T]) get(h gfx.Handle) *T {
	return &a.lookup(h).value
}

func (a *arena[T]) valid(h gfx.Handle) bool {
	if h.Nil() || int(h.Index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.Index]
	return s.live && s.gen == h.Gen
}

func (a *arena[T]) remove(h gfx.Handle) T {
	s := a.lookup(h)
	v := s.value
	var zero T
	s.value, s.live = zero, false
	s.gen++
	a.free = append(a.free, h.Index)
	return v
}

// each visits live slots, newest first.
func (a *arena[T]) each(fn func(gfx.Handle, *T)) {
	for i := len(a.slots) - 1; i >= 0; i-- {
		if s := &a.slots[i]; s.live {
			fn(gfx.Handle{Index: uint32(i), Gen: s.gen}, &s.value)
		}
	}
}

func (a *arena[T]) len() int {
	return len(a.slots) - len(a.free)
}
