// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"sort"

	"github.com/devblok/kiln/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// AllFrames makes UpdateDescriptorSets pick the frame relative
// sub-resource of every dynamic buffer for each set.
const AllFrames = -1

// LayoutBindings derives the descriptor set layout bindings of the given
// resources. Resources sharing a slot are merged by OR-ing their stages.
func LayoutBindings(buffers []gfx.Buffer, textures []*gfx.Texture) ([]gfx.LayoutBinding, error) {
	bySlot := make(map[uint32]*gfx.LayoutBinding)
	add := func(slot uint32, typ gfx.DescriptorType, stages gfx.ShaderStage) error {
		if b, ok := bySlot[slot]; ok {
			if b.Type != typ {
				return errors.Errorf("vkr: binding %d declared as both %s and %s", slot, b.Type, typ)
			}
			b.Stages |= stages
			return nil
		}
		bySlot[slot] = &gfx.LayoutBinding{Binding: slot, Type: typ, Count: 1, Stages: stages}
		return nil
	}

	for _, b := range buffers {
		typ, err := bufferDescriptorType(b)
		if err != nil {
			return nil, err
		}
		res := gfx.Resource(b)
		if err := add(res.Binding.Slot, typ, res.Binding.Stages); err != nil {
			return nil, err
		}
	}
	for _, t := range textures {
		if err := add(t.Binding.Slot, textureDescriptorType(t), t.Binding.Stages); err != nil {
			return nil, err
		}
	}

	bindings := make([]gfx.LayoutBinding, 0, len(bySlot))
	for _, b := range bySlot {
		bindings = append(bindings, *b)
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Binding < bindings[j].Binding })
	return bindings, nil
}

func bufferDescriptorType(b gfx.Buffer) (gfx.DescriptorType, error) {
	switch kind := gfx.KindOf(b); kind {
	case gfx.UniformKind:
		return gfx.UniformBufferDescriptor, nil
	case gfx.StructuredKind:
		return gfx.StorageBufferDescriptor, nil
	default:
		return 0, errors.Errorf("vkr: %s buffers cannot be bound to descriptors", kind)
	}
}

func textureDescriptorType(t *gfx.Texture) gfx.DescriptorType {
	if t.InputAttachment {
		return gfx.InputAttachmentDescriptor
	}
	return gfx.CombinedImageSamplerDescriptor
}

// Descriptors builds descriptor set layouts, pools and sets.
type Descriptors struct {
	ctx      *Context
	log      *log.Entry
	samplers map[uint32]SamplerHandle
}

// NewDescriptors creates a descriptor manager working on ctx.
func NewDescriptors(ctx *Context) *Descriptors {
	return &Descriptors{
		ctx:      ctx,
		log:      ctx.Log("descriptors"),
		samplers: make(map[uint32]SamplerHandle),
	}
}

// CreateDescriptorSetLayout creates the layout the given resources bind to.
func (d *Descriptors) CreateDescriptorSetLayout(buffers []gfx.Buffer, textures []*gfx.Texture) (LayoutHandle, error) {
	bindings, err := LayoutBindings(buffers, textures)
	if err != nil {
		return gfx.Handle{}, err
	}
	native, err := d.ctx.driver.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return gfx.Handle{}, err
	}
	return d.ctx.setLayouts.insert(layoutRecord{native: native, bindings: bindings}), nil
}

// Bindings returns the bindings a layout was created with.
func (d *Descriptors) Bindings(layout LayoutHandle) []gfx.LayoutBinding {
	return d.ctx.setLayouts.get(layout).bindings
}

// DestroyDescriptorSetLayout destroys a layout.
func (d *Descriptors) DestroyDescriptorSetLayout(layout LayoutHandle) {
	d.ctx.driver.DestroyDescriptorSetLayout(d.ctx.setLayouts.remove(layout).native)
}

// CreateDescriptorPool creates a pool that can never grow. It holds as
// many sets as descriptors of all kinds plus extraSets, so it has to be
// sized for the worst case up front.
func (d *Descriptors) CreateDescriptorPool(numUniforms, numTextures, numStorage, extraSets uint32) (PoolHandle, error) {
	maxSets := numUniforms + numTextures + numStorage + extraSets
	if maxSets == 0 {
		return gfx.Handle{}, errors.New("vkr: descriptor pool without sets")
	}

	var sizes []PoolSize
	if numUniforms > 0 {
		sizes = append(sizes, PoolSize{Type: gfx.UniformBufferDescriptor, Count: numUniforms})
	}
	if numTextures > 0 {
		sizes = append(sizes,
			PoolSize{Type: gfx.CombinedImageSamplerDescriptor, Count: numTextures},
			PoolSize{Type: gfx.InputAttachmentDescriptor, Count: numTextures},
		)
	}
	if numStorage > 0 {
		sizes = append(sizes, PoolSize{Type: gfx.StorageBufferDescriptor, Count: numStorage})
	}

	native, err := d.ctx.driver.CreateDescriptorPool(maxSets, sizes)
	if err != nil {
		return gfx.Handle{}, err
	}
	pool := d.ctx.pools.insert(poolRecord{native: native, maxSets: int(maxSets)})
	d.log.WithFields(log.Fields{"pool": pool.Index, "max_sets": maxSets}).Debug("descriptor pool created")
	return pool, nil
}

// DestroyDescriptorPool destroys a pool and every set allocated from it.
// Textures forget the pool's sets.
func (d *Descriptors) DestroyDescriptorPool(pool PoolHandle, textures ...*gfx.Texture) {
	for _, t := range textures {
		t.ForgetWriters(pool)
	}
	d.ctx.driver.DestroyDescriptorPool(d.ctx.pools.remove(pool).native)
}

// CreateDescriptorSets allocates count sets of one layout and writes the
// resources into them. It returns the index of the first set in the pool.
func (d *Descriptors) CreateDescriptorSets(layout LayoutHandle, count int, pool PoolHandle, buffers []gfx.Buffer, textures []*gfx.Texture) (int, error) {
	return d.createSets(layout, count, pool, buffers, textures, nil)
}

// createSets is CreateDescriptorSets with textures written at slots
// instead of their own binding when slots is not nil.
func (d *Descriptors) createSets(layout LayoutHandle, count int, pool PoolHandle, buffers []gfx.Buffer, textures []*gfx.Texture, slots []uint32) (int, error) {
	rec := d.ctx.pools.get(pool)
	if len(rec.sets)+count > rec.maxSets {
		return 0, errors.Wrapf(ErrPoolExhausted, "%d sets allocated, %d requested, %d max", len(rec.sets), count, rec.maxSets)
	}

	nativeLayout := d.ctx.setLayouts.get(layout).native
	layouts := make([]Handle, count)
	for i := range layouts {
		layouts[i] = nativeLayout
	}
	sets, err := d.ctx.driver.AllocateDescriptorSets(rec.native, layouts)
	if err != nil {
		return 0, err
	}

	start := len(rec.sets)
	rec.sets = append(rec.sets, sets...)
	return start, d.update(pool, buffers, textures, slots, start, count, AllFrames)
}

// UpdateDescriptorSets rewrites count sets starting at start. With swapID
// AllFrames set i gets sub-resource i-start of every dynamic buffer,
// otherwise every set gets sub-resource swapID.
func (d *Descriptors) UpdateDescriptorSets(pool PoolHandle, buffers []gfx.Buffer, textures []*gfx.Texture, start, count, swapID int) error {
	return d.update(pool, buffers, textures, nil, start, count, swapID)
}

func (d *Descriptors) update(pool PoolHandle, buffers []gfx.Buffer, textures []*gfx.Texture, slots []uint32, start, count, swapID int) error {
	if slots != nil && len(slots) != len(textures) {
		panic(fmt.Sprintf("vkr: %d slots for %d textures", len(slots), len(textures)))
	}
	rec := d.ctx.pools.get(pool)
	if start < 0 || start+count > len(rec.sets) {
		return errors.Errorf("vkr: sets [%d,%d) out of range [0,%d)", start, start+count, len(rec.sets))
	}

	writes := make([]DescriptorWrite, 0, count*(len(buffers)+len(textures)))
	for i := start; i < start+count; i++ {
		sub := swapID
		if swapID == AllFrames {
			sub = i - start
		}

		for _, b := range buffers {
			typ, err := bufferDescriptorType(b)
			if err != nil {
				return err
			}
			res := gfx.Resource(b)
			writes = append(writes, DescriptorWrite{
				Set:     rec.sets[i],
				Binding: res.Binding.Slot,
				Type:    typ,
				Buffer:  d.ctx.nativeBuffer(res.Sub(sub)),
				Range:   res.Size,
			})
		}

		for j, t := range textures {
			w, err := d.textureWrite(rec.sets[i], t)
			if err != nil {
				return err
			}
			if slots != nil {
				w.Binding = slots[j]
			}
			writes = append(writes, w)
			t.RecordWriter(gfx.DescriptorRef{Pool: pool, Set: i, Binding: w.Binding})
		}
	}

	d.ctx.driver.UpdateDescriptorSets(writes)
	return nil
}

func (d *Descriptors) textureWrite(set Handle, t *gfx.Texture) (DescriptorWrite, error) {
	w := DescriptorWrite{
		Set:     set,
		Binding: t.Binding.Slot,
		Type:    textureDescriptorType(t),
		View:    d.ctx.nativeView(t.ID),
		Layout:  gfx.LayoutShaderReadOnly,
	}
	if !t.InputAttachment {
		sampler, err := d.Sampler(t.Levels())
		if err != nil {
			return DescriptorWrite{}, err
		}
		w.Sampler = *d.ctx.samplers.get(sampler)
	}
	return w, nil
}

// RefreshTexture points every set that references t at its current view.
// Called after the texture was recreated.
func (d *Descriptors) RefreshTexture(t *gfx.Texture) error {
	writes := make([]DescriptorWrite, 0, len(t.Writers()))
	for _, ref := range t.Writers() {
		if !d.ctx.pools.valid(ref.Pool) {
			continue
		}
		rec := d.ctx.pools.get(ref.Pool)
		w, err := d.textureWrite(rec.sets[ref.Set], t)
		if err != nil {
			return err
		}
		w.Binding = ref.Binding
		writes = append(writes, w)
	}
	if len(writes) > 0 {
		d.ctx.driver.UpdateDescriptorSets(writes)
	}
	return nil
}

// Sets returns count native sets starting at start for binding.
func (d *Descriptors) Sets(pool PoolHandle, start, count int) []Handle {
	return d.ctx.pools.get(pool).sets[start : start+count]
}

// Allocated returns how many sets were allocated from pool.
func (d *Descriptors) Allocated(pool PoolHandle) int {
	return len(d.ctx.pools.get(pool).sets)
}

// MaxSets returns the capacity of pool.
func (d *Descriptors) MaxSets(pool PoolHandle) int {
	return d.ctx.pools.get(pool).maxSets
}

// Sampler returns the shared linear, repeating sampler covering mipLevels.
func (d *Descriptors) Sampler(mipLevels uint32) (SamplerHandle, error) {
	if s, ok := d.samplers[mipLevels]; ok {
		return s, nil
	}
	native, err := d.ctx.driver.CreateSampler(SamplerInfo{
		MipLevels:  mipLevels,
		Anisotropy: d.ctx.limits.MaxSamplerAnisotropy,
	})
	if err != nil {
		return gfx.Handle{}, err
	}
	s := d.ctx.samplers.insert(native)
	d.samplers[mipLevels] = s
	return s, nil
}
