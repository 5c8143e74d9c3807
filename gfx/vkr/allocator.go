// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/kiln/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ImageDesc describes an image and the memory backing it.
type ImageDesc struct {
	Extent     gfx.Extent2D
	Format     gfx.Format
	Tiling     gfx.Tiling
	Usage      gfx.ImageUsage
	Properties gfx.MemoryProperty
	MipLevels  uint32
	Samples    gfx.SampleCount
	Cubemap    bool
}

func (d ImageDesc) info() ImageInfo {
	info := ImageInfo{
		Extent:    d.Extent,
		Format:    d.Format,
		MipLevels: d.MipLevels,
		Layers:    1,
		Samples:   d.Samples,
		Tiling:    d.Tiling,
		Usage:     d.Usage,
		Cube:      d.Cubemap,
	}
	if info.MipLevels == 0 {
		info.MipLevels = 1
	}
	if info.Samples == 0 {
		info.Samples = gfx.Samples1
	}
	if d.Cubemap {
		info.Layers = 6
	}
	return info
}

// Allocator creates buffers, images and the memory behind them.
type Allocator struct {
	ctx  *Context
	log  *log.Entry
	pool Handle
}

// NewAllocator creates an allocator working on ctx.
func NewAllocator(ctx *Context) *Allocator {
	return &Allocator{
		ctx: ctx,
		log: ctx.Log("allocator"),
	}
}

// Context returns the backend context.
func (a *Allocator) Context() *Context {
	return a.ctx
}

// FindMemoryType returns the first memory type allowed by filter that
// has all of props.
func (a *Allocator) FindMemoryType(filter uint32, props gfx.MemoryProperty) (uint32, error) {
	for idx, mt := range a.ctx.memoryTypes {
		if filter&(1<<uint(idx)) != 0 && mt.Properties&props == props {
			return uint32(idx), nil
		}
	}
	return 0, errors.Wrapf(ErrNoMemoryType, "filter %#x, properties %#x", filter, props)
}

func (a *Allocator) allocate(req MemoryRequirements, props gfx.MemoryProperty) (MemoryHandle, Handle, error) {
	typeIndex, err := a.FindMemoryType(req.TypeBits, props)
	if err != nil {
		return gfx.Handle{}, NullHandle, err
	}
	native, err := a.ctx.driver.AllocateMemory(req.Size, typeIndex)
	if err != nil {
		return gfx.Handle{}, NullHandle, err
	}
	h := a.ctx.memories.insert(memoryRecord{native: native, size: req.Size, props: props})
	return h, native, nil
}

// CreateBuffer creates a buffer with its own memory allocation.
func (a *Allocator) CreateBuffer(size uint64, usage gfx.BufferUsage, props gfx.MemoryProperty) (BufferHandle, MemoryHandle, error) {
	drv := a.ctx.driver
	native, req, err := drv.CreateBuffer(size, usage)
	if err != nil {
		return gfx.Handle{}, gfx.Handle{}, err
	}

	mem, nativeMem, err := a.allocate(req, props)
	if err != nil {
		drv.DestroyBuffer(native)
		return gfx.Handle{}, gfx.Handle{}, err
	}

	if err := drv.BindBufferMemory(native, nativeMem); err != nil {
		drv.DestroyBuffer(native)
		drv.FreeMemory(a.ctx.memories.remove(mem).native)
		return gfx.Handle{}, gfx.Handle{}, err
	}

	buf := a.ctx.buffers.insert(bufferRecord{native: native, memory: mem, size: size})
	a.log.WithFields(log.Fields{"size": size, "buffer": buf.Index}).Debug("buffer created")
	return buf, mem, nil
}

// DestroyBuffer destroys the buffer and frees its memory.
func (a *Allocator) DestroyBuffer(b BufferHandle) {
	rec := a.ctx.buffers.remove(b)
	a.ctx.driver.DestroyBuffer(rec.native)
	a.ctx.driver.FreeMemory(a.ctx.memories.remove(rec.memory).native)
}

// CreateImage creates an image with its own memory allocation.
// Cubemaps get six layers.
func (a *Allocator) CreateImage(desc ImageDesc) (ImageHandle, MemoryHandle, error) {
	drv := a.ctx.driver
	info := desc.info()
	native, req, err := drv.CreateImage(info)
	if err != nil {
		return gfx.Handle{}, gfx.Handle{}, err
	}

	mem, nativeMem, err := a.allocate(req, desc.Properties)
	if err != nil {
		drv.DestroyImage(native)
		return gfx.Handle{}, gfx.Handle{}, err
	}

	if err := drv.BindImageMemory(native, nativeMem); err != nil {
		drv.DestroyImage(native)
		drv.FreeMemory(a.ctx.memories.remove(mem).native)
		return gfx.Handle{}, gfx.Handle{}, err
	}

	img := a.ctx.images.insert(imageRecord{native: native, memory: mem, info: info})
	return img, mem, nil
}

func (a *Allocator) destroyImage(img ImageHandle) {
	rec := a.ctx.images.remove(img)
	a.ctx.driver.DestroyImage(rec.native)
	a.ctx.driver.FreeMemory(a.ctx.memories.remove(rec.memory).native)
}

func (a *Allocator) createView(img ImageHandle) (ViewHandle, error) {
	rec := a.ctx.images.get(img)
	native, err := a.ctx.driver.CreateImageView(ViewInfo{
		Image:     rec.native,
		Format:    rec.info.Format,
		MipLevels: rec.info.MipLevels,
		Layers:    rec.info.Layers,
		Cube:      rec.info.Cube,
	})
	if err != nil {
		return gfx.Handle{}, err
	}
	return a.ctx.views.insert(native), nil
}

func (a *Allocator) destroyView(view ViewHandle) {
	a.ctx.driver.DestroyImageView(a.ctx.views.remove(view))
}

func (a *Allocator) write(mem MemoryHandle, data []byte) error {
	rec := a.ctx.memories.get(mem)
	if rec.props&gfx.HostVisible == 0 {
		return errors.New("vkr: memory is not host visible")
	}
	mapped, err := a.ctx.driver.MapMemory(rec.native, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(mapped, data)
	a.ctx.driver.UnmapMemory(rec.native)
	return nil
}

// stage copies data into a fresh host visible transfer source buffer.
func (a *Allocator) stage(data []byte) (BufferHandle, error) {
	staging, mem, err := a.CreateBuffer(uint64(len(data)), gfx.BufferTransferSrc, gfx.HostVisible|gfx.HostCoherent)
	if err != nil {
		return gfx.Handle{}, err
	}
	if err := a.write(mem, data); err != nil {
		a.DestroyBuffer(staging)
		return gfx.Handle{}, err
	}
	return staging, nil
}

// oneShot records commands into a single use command buffer, submits it
// and waits for the queue to drain.
func (a *Allocator) oneShot(record func(cb Handle)) error {
	drv := a.ctx.driver
	if a.pool == NullHandle {
		pool, err := drv.CreateCommandPool(GraphicsQueue)
		if err != nil {
			return err
		}
		a.pool = pool
	}

	cbs, err := drv.AllocateCommandBuffers(a.pool, 1)
	if err != nil {
		return err
	}
	defer drv.FreeCommandBuffers(a.pool, cbs)

	if err := drv.BeginCommandBuffer(cbs[0], true); err != nil {
		return err
	}
	record(cbs[0])
	if err := drv.EndCommandBuffer(cbs[0]); err != nil {
		return err
	}

	if err := drv.QueueSubmit(GraphicsQueue, SubmitInfo{Buffers: cbs}); err != nil {
		return err
	}
	return drv.QueueWaitIdle(GraphicsQueue)
}

// Upload fills a device local buffer through a staging buffer. The
// destination is complete once Upload returns.
func (a *Allocator) Upload(dst BufferHandle, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	rec := a.ctx.buffers.get(dst)
	if uint64(len(data)) > rec.size {
		return errors.Errorf("vkr: upload of %d bytes into a %d byte buffer", len(data), rec.size)
	}

	staging, err := a.stage(data)
	if err != nil {
		return err
	}
	defer a.DestroyBuffer(staging)

	src := a.ctx.nativeBuffer(staging)
	return a.oneShot(func(cb Handle) {
		a.ctx.driver.CmdCopyBuffer(cb, src, rec.native, uint64(len(data)))
	})
}

// CreateVertexBuffer creates the device local buffer of vb and uploads data.
func (a *Allocator) CreateVertexBuffer(vb *gfx.VertexBuffer, data []byte) error {
	if vb.Size == 0 {
		vb.Size = uint64(len(data))
	}
	if vb.Count == 0 && vb.Layout.Stride != 0 {
		vb.Count = uint32(vb.Size / uint64(vb.Layout.Stride))
	}
	return a.createStatic(&vb.BufferResource, gfx.VertexKind.Usage(), data)
}

// CreateIndexBuffer creates the device local buffer of ib and uploads data.
func (a *Allocator) CreateIndexBuffer(ib *gfx.IndexBuffer, data []byte) error {
	if ib.Size == 0 {
		ib.Size = uint64(len(data))
	}
	if ib.Count == 0 {
		ib.Count = uint32(ib.Size / ib.Type.Size())
	}
	return a.createStatic(&ib.BufferResource, gfx.IndexKind.Usage(), data)
}

func (a *Allocator) createStatic(res *gfx.BufferResource, usage gfx.BufferUsage, data []byte) error {
	buf, _, err := a.CreateBuffer(res.Size, usage, gfx.DeviceLocal)
	if err != nil {
		return err
	}
	if err := a.Upload(buf, data); err != nil {
		a.DestroyBuffer(buf)
		return err
	}
	res.Dynamic = false
	res.IDs = []gfx.Handle{buf}
	return nil
}

func (a *Allocator) slots(res *gfx.BufferResource) int {
	if res.Dynamic {
		return a.ctx.framesInFlight
	}
	return 1
}

// CreateUniformBuffer creates host visible buffers for ub, one per frame
// in flight when it is dynamic.
func (a *Allocator) CreateUniformBuffer(ub *gfx.UniformBuffer) error {
	ids := make([]gfx.Handle, 0, a.slots(&ub.BufferResource))
	for i := 0; i < cap(ids); i++ {
		buf, _, err := a.CreateBuffer(ub.Size, gfx.UniformKind.Usage(), gfx.HostVisible|gfx.HostCoherent)
		if err != nil {
			a.destroyAll(ids)
			return err
		}
		ids = append(ids, buf)
	}
	ub.IDs = ids
	return nil
}

// CreateStructuredBuffer creates device local storage buffers for sb, one
// per frame in flight when it is dynamic, each filled with data if given.
func (a *Allocator) CreateStructuredBuffer(sb *gfx.StructuredBuffer, data []byte) error {
	ids := make([]gfx.Handle, 0, a.slots(&sb.BufferResource))
	for i := 0; i < cap(ids); i++ {
		buf, _, err := a.CreateBuffer(sb.Size, gfx.StructuredKind.Usage(), gfx.DeviceLocal)
		if err == nil {
			err = a.Upload(buf, data)
			if err != nil {
				a.DestroyBuffer(buf)
			}
		}
		if err != nil {
			a.destroyAll(ids)
			return err
		}
		ids = append(ids, buf)
	}
	sb.IDs = ids
	return nil
}

func (a *Allocator) destroyAll(ids []gfx.Handle) {
	for _, id := range ids {
		a.DestroyBuffer(id)
	}
}

// WriteBuffer replaces the contents of the sub-resource b uses in frame.
// The caller must have waited on that frame's fence.
func (a *Allocator) WriteBuffer(b gfx.Buffer, frame uint64, data []byte) error {
	res := gfx.Resource(b)
	if uint64(len(data)) > res.Size {
		return errors.Errorf("vkr: write of %d bytes into a %d byte %s buffer", len(data), res.Size, gfx.KindOf(b))
	}
	id := res.ID(frame)
	rec := a.ctx.buffers.get(id)
	if a.ctx.memories.get(rec.memory).props&gfx.HostVisible != 0 {
		return a.write(rec.memory, data)
	}
	return a.Upload(id, data)
}

// Release destroys every backend buffer of b.
func (a *Allocator) Release(b gfx.Buffer) {
	res := gfx.Resource(b)
	a.destroyAll(res.IDs)
	res.IDs = nil
}

// CreateTexture creates a sampled texture from RGBA8 pixels. Mip levels
// are generated on the CPU and uploaded together with the base level.
func (a *Allocator) CreateTexture(t *gfx.Texture, px *gfx.Pixels) error {
	if err := px.Validate(); err != nil {
		return err
	}
	if t.Cubemap && px.Layers != 6 {
		return errors.Errorf("vkr: cubemap %s needs 6 layers, got %d", t.Name, px.Layers)
	}
	if t.Format == gfx.FormatUndefined {
		t.Format = gfx.FormatRGBA8Srgb
	}
	if t.FinalLayout == gfx.LayoutUndefined {
		t.FinalLayout = gfx.LayoutShaderReadOnly
	}
	t.Extent = gfx.Extent2D{Width: px.Width, Height: px.Height}
	t.Usage |= gfx.ImageTransferDst | gfx.ImageSampled
	if max := gfx.MaxMipLevels(px.Width, px.Height); t.MipLevels > max {
		t.MipLevels = max
	}

	chain := px.MipChain(t.Levels())
	var size int
	for _, level := range chain {
		size += len(level.Data)
	}
	data := make([]byte, 0, size)
	regions := make([]BufferImageCopy, 0, len(chain))
	for _, level := range chain {
		regions = append(regions, BufferImageCopy{
			Offset:   uint64(len(data)),
			MipLevel: level.Level,
			Layer:    level.Layer,
			Extent:   level.Extent,
		})
		data = append(data, level.Data...)
	}

	img, mem, view, err := a.createTextureObjects(t)
	if err != nil {
		return err
	}
	t.ID = a.ctx.bindTexture(img, mem, view)

	staging, err := a.stage(data)
	if err != nil {
		a.DestroyTexture(t)
		return err
	}
	defer a.DestroyBuffer(staging)

	native := a.ctx.images.get(img).native
	src := a.ctx.nativeBuffer(staging)
	toDst, _ := gfx.TransitionMasks(gfx.LayoutUndefined, gfx.LayoutTransferDst)
	final, ok := gfx.TransitionMasks(gfx.LayoutTransferDst, t.FinalLayout)
	if !ok {
		a.DestroyTexture(t)
		return errors.Wrapf(ErrUnsupportedTransition, "%s to %s", gfx.LayoutTransferDst, t.FinalLayout)
	}

	err = a.oneShot(func(cb Handle) {
		drv := a.ctx.driver
		drv.CmdPipelineBarrier(cb, a.barrier(native, t, gfx.LayoutUndefined, gfx.LayoutTransferDst, toDst))
		drv.CmdCopyBufferToImage(cb, src, native, regions)
		drv.CmdPipelineBarrier(cb, a.barrier(native, t, gfx.LayoutTransferDst, t.FinalLayout, final))
	})
	if err != nil {
		a.DestroyTexture(t)
		return err
	}

	a.log.WithFields(log.Fields{
		"texture": t.Name,
		"width":   t.Extent.Width,
		"height":  t.Extent.Height,
		"levels":  t.Levels(),
	}).Debug("texture created")
	return nil
}

func (a *Allocator) createTextureObjects(t *gfx.Texture) (ImageHandle, MemoryHandle, ViewHandle, error) {
	img, mem, err := a.CreateImage(ImageDesc{
		Extent:     t.Extent,
		Format:     t.Format,
		Tiling:     t.Tiling,
		Usage:      t.Usage,
		Properties: gfx.DeviceLocal,
		MipLevels:  t.Levels(),
		Samples:    t.SampleCount(),
		Cubemap:    t.Cubemap,
	})
	if err != nil {
		return gfx.Handle{}, gfx.Handle{}, gfx.Handle{}, err
	}
	view, err := a.createView(img)
	if err != nil {
		a.destroyImage(img)
		return gfx.Handle{}, gfx.Handle{}, gfx.Handle{}, err
	}
	return img, mem, view, nil
}

// CreateAttachment creates a render target texture of the given extent
// and moves it into its initial layout.
func (a *Allocator) CreateAttachment(t *gfx.Texture, extent gfx.Extent2D) error {
	t.Extent = extent
	img, mem, view, err := a.createTextureObjects(t)
	if err != nil {
		return err
	}
	t.ID = a.ctx.bindTexture(img, mem, view)

	if t.InitialLayout != gfx.LayoutUndefined {
		if err := a.TransitionImageLayout(t, gfx.LayoutUndefined, t.InitialLayout, nil); err != nil {
			a.DestroyTexture(t)
			return err
		}
	}
	a.log.WithFields(log.Fields{"attachment": t.Name, "width": extent.Width, "height": extent.Height}).Debug("attachment created")
	return nil
}

// RecreateTexture replaces the image, memory and view of an attachment
// with ones of the new extent. The logical TextureID stays the same.
func (a *Allocator) RecreateTexture(t *gfx.Texture, extent gfx.Extent2D) error {
	if !t.ID.Valid() {
		return a.CreateAttachment(t, extent)
	}

	a.destroyView(a.ctx.TextureView(t.ID))
	a.destroyImage(a.ctx.TextureImage(t.ID))

	t.Extent = extent
	img, mem, view, err := a.createTextureObjects(t)
	if err != nil {
		a.ctx.unbindTexture(t.ID)
		t.ID = gfx.TextureID{}
		return err
	}
	a.ctx.rebindTexture(t.ID, img, mem, view)

	if t.InitialLayout != gfx.LayoutUndefined {
		return a.TransitionImageLayout(t, gfx.LayoutUndefined, t.InitialLayout, nil)
	}
	return nil
}

// TransitionImageLayout moves every level and layer of t from old to new.
// Pairs without canonical masks need explicit masks.
func (a *Allocator) TransitionImageLayout(t *gfx.Texture, old, new gfx.ImageLayout, masks *gfx.BarrierMasks) error {
	var m gfx.BarrierMasks
	if masks != nil {
		m = *masks
	} else {
		var ok bool
		if m, ok = gfx.TransitionMasks(old, new); !ok {
			return errors.Wrapf(ErrUnsupportedTransition, "%s: %s to %s", t.Name, old, new)
		}
	}

	native := a.ctx.nativeImage(t.ID)
	return a.oneShot(func(cb Handle) {
		a.ctx.driver.CmdPipelineBarrier(cb, a.barrier(native, t, old, new, m))
	})
}

func (a *Allocator) barrier(image Handle, t *gfx.Texture, old, new gfx.ImageLayout, m gfx.BarrierMasks) ImageBarrier {
	return ImageBarrier{
		Image:     image,
		Format:    t.Format,
		Old:       old,
		New:       new,
		Masks:     m,
		MipLevels: t.Levels(),
		Layers:    t.Layers(),
	}
}

// DestroyTexture destroys the backend objects of t and retires its identity.
func (a *Allocator) DestroyTexture(t *gfx.Texture) {
	if !t.ID.Valid() {
		return
	}
	if view := a.ctx.TextureView(t.ID); a.ctx.views.valid(view) {
		a.destroyView(view)
	}
	if img := a.ctx.TextureImage(t.ID); a.ctx.images.valid(img) {
		a.destroyImage(img)
	}
	a.ctx.unbindTexture(t.ID)
	t.ID = gfx.TextureID{}
}

// Destroy releases the allocator's command pool.
func (a *Allocator) Destroy() {
	if a.pool != NullHandle {
		a.ctx.driver.DestroyCommandPool(a.pool)
		a.pool = NullHandle
	}
}
