// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// ImageLayout is the memory layout an image is kept in.
type ImageLayout int

// Image layouts.
const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

var layoutNames = [...]string{
	"undefined",
	"general",
	"color_attachment",
	"depth_stencil_attachment",
	"depth_stencil_read_only",
	"shader_read_only",
	"transfer_src",
	"transfer_dst",
	"present_src",
}

func (l ImageLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "unknown"
}

// BarrierMasks are the access and stage masks on both sides of a barrier.
type BarrierMasks struct {
	SrcAccess Access
	DstAccess Access
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

type transition struct {
	old, new ImageLayout
}

// transitions holds the canonical masks for the layout changes the
// renderer performs. Anything else needs explicit masks from the caller.
var transitions = map[transition]BarrierMasks{
	{LayoutUndefined, LayoutTransferDst}: {
		DstAccess: AccessTransferWrite,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageTransfer,
	},
	{LayoutTransferDst, LayoutShaderReadOnly}: {
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessShaderRead,
		SrcStage:  StageTransfer,
		DstStage:  StageFragmentShader,
	},
	{LayoutTransferDst, LayoutTransferSrc}: {
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessTransferRead,
		SrcStage:  StageTransfer,
		DstStage:  StageTransfer,
	},
	{LayoutUndefined, LayoutShaderReadOnly}: {
		DstAccess: AccessShaderRead,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageFragmentShader,
	},
	{LayoutUndefined, LayoutGeneral}: {
		DstAccess: AccessShaderRead | AccessShaderWrite,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageComputeShader,
	},
	{LayoutUndefined, LayoutDepthStencilAttachment}: {
		DstAccess: AccessDepthStencilRead | AccessDepthStencilWrite,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageEarlyFragmentTests,
	},
	{LayoutUndefined, LayoutColorAttachment}: {
		DstAccess: AccessColorAttachmentWrite,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageColorAttachmentOutput,
	},
	{LayoutColorAttachment, LayoutPresentSrc}: {
		SrcAccess: AccessColorAttachmentWrite,
		SrcStage:  StageColorAttachmentOutput,
		DstStage:  StageBottomOfPipe,
	},
	{LayoutColorAttachment, LayoutShaderReadOnly}: {
		SrcAccess: AccessColorAttachmentWrite,
		DstAccess: AccessShaderRead,
		SrcStage:  StageColorAttachmentOutput,
		DstStage:  StageFragmentShader,
	},
}

// TransitionMasks returns the canonical barrier masks for moving an image
// from old to new. The second return is false for pairs that have no
// canonical masks.
func TransitionMasks(old, new ImageLayout) (BarrierMasks, bool) {
	m, ok := transitions[transition{old, new}]
	return m, ok
}

// SubpassInputMasks is the read-after-write dependency between a subpass
// writing color attachments and a later one reading them as input attachments.
var SubpassInputMasks = BarrierMasks{
	SrcAccess: AccessColorAttachmentWrite,
	DstAccess: AccessInputAttachmentRead,
	SrcStage:  StageColorAttachmentOutput,
	DstStage:  StageFragmentShader,
}
