// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"

	"github.com/devblok/kiln/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Fixed attachment indices of every render pass.
const (
	swapchainAttachment = 0
	depthAttachment     = 1
	msaaAttachment      = 2
)

// SubPassDesc is one subpass: the pipeline it draws with, the color
// attachments it writes besides the swapchain image and the earlier
// attachments it reads as inputs. Inputs index the attachments of all
// earlier subpasses in declaration order.
type SubPassDesc struct {
	Pipeline    gfx.GraphicsPipelineDesc
	Attachments []*gfx.Texture
	Inputs      []int
}

// RenderPass is an ordered list of subpasses rendering into the current
// swapchain image. It owns the pipelines of its subpasses.
type RenderPass struct {
	pipes *Pipelines
	pres  *Presentation
	log   *log.Entry

	handle       RenderPassHandle
	pipelines    []*GraphicsPipeline
	extras       []*gfx.Texture
	inputs       []*gfx.Texture
	framebuffers []Handle
	clear        []ClearValue
}

// NewRenderPass creates the native render pass, its framebuffers and the
// pipeline of every subpass. Subpass 0 renders to the swapchain.
func NewRenderPass(pipes *Pipelines, pres *Presentation, subpasses []SubPassDesc) (rp *RenderPass, err error) {
	if len(subpasses) == 0 {
		return nil, errors.New("vkr: render pass without subpasses")
	}
	rp = &RenderPass{
		pipes: pipes,
		pres:  pres,
		log:   pipes.ctx.Log("renderpass"),
	}
	partial := rp
	defer func() {
		if err != nil {
			partial.Destroy()
		}
	}()

	info, inputs := rp.describe(subpasses)
	for _, t := range rp.extras {
		if err := pipes.alloc.CreateAttachment(t, pres.Extent()); err != nil {
			return nil, err
		}
	}

	native, err := pipes.ctx.driver.CreateRenderPass(info)
	if err != nil {
		return nil, errors.Wrap(err, "render pass")
	}
	rp.handle = pipes.ctx.renderPasses.insert(native)

	if err := rp.createFramebuffers(); err != nil {
		return nil, err
	}

	for i, sp := range subpasses {
		desc := sp.Pipeline
		desc.Subpass = i
		desc.Samples = pres.Samples()
		desc.ColorAttachments = 1 + len(sp.Attachments)
		desc.Textures = append(append([]*gfx.Texture(nil), desc.Textures...), inputs[i]...)

		gp, err := pipes.CreateGraphics(desc, rp.handle)
		if err != nil {
			return nil, err
		}
		rp.pipelines = append(rp.pipelines, gp)
	}

	pres.OnResize(rp.resize)
	rp.log.WithFields(log.Fields{"subpasses": len(subpasses), "attachments": len(info.Attachments)}).Debug("render pass created")
	return rp, nil
}

// describe lays the attachments out as swapchain image, depth, the
// multisampled color target when there is one, then every extra color
// attachment in declaration order. It returns the input textures of
// every subpass too.
func (rp *RenderPass) describe(subpasses []SubPassDesc) (RenderPassInfo, [][]*gfx.Texture) {
	samples := rp.pres.Samples()
	multisampled := samples > gfx.Samples1

	info := RenderPassInfo{
		Attachments: []AttachmentInfo{
			{
				Format:  rp.pres.Format().Format,
				Samples: gfx.Samples1,
				Load:    gfx.LoadClear,
				Store:   gfx.StoreKeep,
				Initial: gfx.LayoutColorAttachment,
				Final:   gfx.LayoutColorAttachment,
			},
			{
				Format:  rp.pres.DepthTarget().Format,
				Samples: samples,
				Load:    gfx.LoadClear,
				Store:   gfx.StoreDontCare,
				Initial: gfx.LayoutUndefined,
				Final:   gfx.LayoutDepthStencilAttachment,
			},
		},
	}
	rp.clear = []ClearValue{
		{Color: [4]float32{0, 0, 0, 1}},
		{Depth: 1},
	}
	color := uint32(swapchainAttachment)
	if multisampled {
		info.Attachments[swapchainAttachment].Load = gfx.LoadDontCare
		info.Attachments = append(info.Attachments, AttachmentInfo{
			Format:  rp.pres.Format().Format,
			Samples: samples,
			Load:    gfx.LoadClear,
			Store:   gfx.StoreDontCare,
			Initial: gfx.LayoutUndefined,
			Final:   gfx.LayoutColorAttachment,
		})
		rp.clear = append(rp.clear, ClearValue{Color: [4]float32{0, 0, 0, 1}})
		color = msaaAttachment
	}
	base := uint32(len(info.Attachments))

	// Attachments read as inputs end up in shader read only layout.
	read := make(map[int]bool)
	for _, sp := range subpasses {
		for _, in := range sp.Inputs {
			read[in] = true
		}
	}

	inputs := make([][]*gfx.Texture, len(subpasses))
	for i, sp := range subpasses {
		declared := len(rp.extras)
		for _, in := range sp.Inputs {
			if in < 0 || in >= declared {
				panic(fmt.Sprintf("vkr: subpass %d input %d out of range [0,%d)", i, in, declared))
			}
		}

		sub := SubpassInfo{
			Color: []AttachmentRef{{Attachment: color, Layout: gfx.LayoutColorAttachment}},
			Depth: &AttachmentRef{Attachment: depthAttachment, Layout: gfx.LayoutDepthStencilAttachment},
		}
		for _, t := range sp.Attachments {
			idx := len(rp.extras)
			if t.Format == gfx.FormatUndefined {
				t.Format = rp.pres.Format().Format
			}
			t.Samples = samples
			t.SwapchainSized = true
			t.Usage |= gfx.ImageColorAttachment
			final := gfx.LayoutColorAttachment
			if read[idx] {
				t.Usage |= gfx.ImageInputAttachment
				final = gfx.LayoutShaderReadOnly
			}
			info.Attachments = append(info.Attachments, AttachmentInfo{
				Format:  t.Format,
				Samples: samples,
				Load:    gfx.LoadClear,
				Store:   gfx.StoreDontCare,
				Initial: gfx.LayoutUndefined,
				Final:   final,
			})
			rp.clear = append(rp.clear, ClearValue{})
			sub.Color = append(sub.Color, AttachmentRef{Attachment: base + uint32(idx), Layout: gfx.LayoutColorAttachment})
			rp.extras = append(rp.extras, t)
		}

		for _, in := range sp.Inputs {
			t := rp.extras[in]
			t.InputAttachment = true
			if t.Binding.Stages == 0 {
				t.Binding.Stages = gfx.FragmentStage
			}
			sub.Inputs = append(sub.Inputs, AttachmentRef{Attachment: base + uint32(in), Layout: gfx.LayoutShaderReadOnly})
			inputs[i] = append(inputs[i], t)
			rp.inputs = append(rp.inputs, t)
		}

		if multisampled && i == len(subpasses)-1 {
			sub.Resolve = make([]AttachmentRef, len(sub.Color))
			for j := range sub.Resolve {
				sub.Resolve[j] = AttachmentRef{Attachment: AttachmentUnused}
			}
			sub.Resolve[0] = AttachmentRef{Attachment: swapchainAttachment, Layout: gfx.LayoutColorAttachment}
		}
		info.Subpasses = append(info.Subpasses, sub)
	}

	info.Dependencies = append(info.Dependencies, DependencyInfo{
		Src: SubpassExternal,
		Dst: 0,
		Masks: gfx.BarrierMasks{
			DstAccess: gfx.AccessColorAttachmentWrite | gfx.AccessDepthStencilWrite,
			SrcStage:  gfx.StageColorAttachmentOutput | gfx.StageEarlyFragmentTests,
			DstStage:  gfx.StageColorAttachmentOutput | gfx.StageEarlyFragmentTests,
		},
	})
	for i := 1; i < len(subpasses); i++ {
		info.Dependencies = append(info.Dependencies, DependencyInfo{
			Src:      uint32(i - 1),
			Dst:      uint32(i),
			Masks:    gfx.SubpassInputMasks,
			ByRegion: true,
		})
	}
	return info, inputs
}

func (rp *RenderPass) createFramebuffers() error {
	ctx := rp.pipes.ctx
	native := *ctx.renderPasses.get(rp.handle)

	shared := []Handle{ctx.nativeView(rp.pres.DepthTarget().ID)}
	if color := rp.pres.ColorTarget(); color != nil {
		shared = append(shared, ctx.nativeView(color.ID))
	}
	for _, t := range rp.extras {
		shared = append(shared, ctx.nativeView(t.ID))
	}

	rp.framebuffers = make([]Handle, 0, rp.pres.ImageCount())
	for i := 0; i < rp.pres.ImageCount(); i++ {
		views := append([]Handle{rp.pres.View(uint32(i))}, shared...)
		fb, err := ctx.driver.CreateFramebuffer(native, views, rp.pres.Extent())
		if err != nil {
			return errors.Wrap(err, "framebuffer")
		}
		rp.framebuffers = append(rp.framebuffers, fb)
	}
	return nil
}

func (rp *RenderPass) destroyFramebuffers() {
	for _, fb := range rp.framebuffers {
		rp.pipes.ctx.driver.DestroyFramebuffer(fb)
	}
	rp.framebuffers = nil
}

// resize recreates the extra attachments and the framebuffers at the new
// swapchain extent and points the descriptor sets reading the attachments
// at their new views.
func (rp *RenderPass) resize() error {
	if !rp.pipes.ctx.renderPasses.valid(rp.handle) {
		return nil
	}
	extent := rp.pres.Extent()
	for _, t := range rp.extras {
		if err := rp.pipes.alloc.RecreateTexture(t, extent); err != nil {
			return err
		}
	}
	rp.destroyFramebuffers()
	if err := rp.createFramebuffers(); err != nil {
		return err
	}
	for _, t := range rp.inputs {
		if err := rp.pipes.descriptors.RefreshTexture(t); err != nil {
			return err
		}
	}
	rp.log.WithFields(log.Fields{"width": extent.Width, "height": extent.Height}).Debug("render pass resized")
	return nil
}

// Handle returns the render pass arena handle.
func (rp *RenderPass) Handle() RenderPassHandle {
	return rp.handle
}

// Subpasses is the number of subpasses.
func (rp *RenderPass) Subpasses() int {
	return len(rp.pipelines)
}

// Pipeline returns the pipeline of subpass i.
func (rp *RenderPass) Pipeline(i int) *GraphicsPipeline {
	if i < 0 || i >= len(rp.pipelines) {
		panic(fmt.Sprintf("vkr: subpass %d out of range [0,%d)", i, len(rp.pipelines)))
	}
	return rp.pipelines[i]
}

// Attachments returns the extra color attachments in declaration order.
func (rp *RenderPass) Attachments() []*gfx.Texture {
	return rp.extras
}

// Framebuffer returns the framebuffer of swapchain image index.
func (rp *RenderPass) Framebuffer(index uint32) Handle {
	return rp.framebuffers[index]
}

func (rp *RenderPass) begin(index uint32) RenderPassBegin {
	return RenderPassBegin{
		RenderPass:  *rp.pipes.ctx.renderPasses.get(rp.handle),
		Framebuffer: rp.framebuffers[index],
		Extent:      rp.pres.Extent(),
		Clear:       rp.clear,
	}
}

func (rp *RenderPass) waits() []PipelineID {
	var waits []PipelineID
	for _, p := range rp.pipelines {
		waits = append(waits, p.Waits()...)
	}
	return waits
}

// Destroy destroys the pipelines, attachments, framebuffers and the
// native render pass. The device must be idle.
func (rp *RenderPass) Destroy() {
	for _, p := range rp.pipelines {
		rp.pipes.Destroy(p)
	}
	rp.pipelines = nil
	rp.destroyFramebuffers()
	for _, t := range rp.extras {
		rp.pipes.alloc.DestroyTexture(t)
	}
	ctx := rp.pipes.ctx
	if ctx.renderPasses.valid(rp.handle) {
		ctx.driver.DestroyRenderPass(ctx.renderPasses.remove(rp.handle))
	}
}

// ComputePass is a list of compute pipelines submitted together on the
// compute stream.
type ComputePass struct {
	pipes     *Pipelines
	pipelines []*ComputePipeline
}

// NewComputePass creates a pipeline for every description.
func NewComputePass(pipes *Pipelines, descs ...gfx.ComputePipelineDesc) (*ComputePass, error) {
	cp := &ComputePass{pipes: pipes}
	for _, desc := range descs {
		p, err := pipes.CreateCompute(desc)
		if err != nil {
			cp.Destroy()
			return nil, err
		}
		cp.pipelines = append(cp.pipelines, p)
	}
	return cp, nil
}

// Pipeline returns the i-th pipeline.
func (cp *ComputePass) Pipeline(i int) *ComputePipeline {
	return cp.pipelines[i]
}

// Pipelines returns every pipeline of the pass.
func (cp *ComputePass) Pipelines() []*ComputePipeline {
	return cp.pipelines
}

func (cp *ComputePass) waits() []PipelineID {
	var waits []PipelineID
	for _, p := range cp.pipelines {
		waits = append(waits, p.Waits()...)
	}
	return waits
}

// Destroy destroys every pipeline of the pass.
func (cp *ComputePass) Destroy() {
	for _, p := range cp.pipelines {
		cp.pipes.Destroy(p)
	}
	cp.pipelines = nil
}
