// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/devblok/kiln/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

const wholeSize = vk.DeviceSize(math.MaxUint64)

// registry hands out opaque handles for native objects.
type registry[T any] struct {
	next  Handle
	items map[Handle]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{items: make(map[Handle]T)}
}

func (r *registry[T]) add(v T) Handle {
	r.next++
	r.items[r.next] = v
	return r.next
}

func (r *registry[T]) get(h Handle) T {
	return r.items[h]
}

func (r *registry[T]) take(h Handle) (T, bool) {
	v, ok := r.items[h]
	delete(r.items, h)
	return v, ok
}

func check(res vk.Result, call string) error {
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, call)
	}
	return nil
}

func safeString(s string) string {
	return s + "\x00"
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}

// sliceUint32 reinterprets SPIR-V bytes as words.
func sliceUint32(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words
}

// DeviceConfig selects optional device features.
type DeviceConfig struct {
	// Extensions to enable on top of the swapchain extension.
	Extensions []string
}

type queueFamilies struct {
	graphics, present, compute uint32
}

func (q queueFamilies) unique() []uint32 {
	out := []uint32{q.graphics}
	for _, f := range []uint32{q.present, q.compute} {
		seen := false
		for _, o := range out {
			seen = seen || o == f
		}
		if !seen {
			out = append(out, f)
		}
	}
	return out
}

// findQueueFamilies prefers a graphics family that presents, and a
// compute family without graphics so compute can overlap rendering.
func findQueueFamilies(gpu vk.PhysicalDevice, surface vk.Surface) (queueFamilies, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	if count == 0 {
		return queueFamilies{}, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)

	const none = ^uint32(0)
	q := queueFamilies{graphics: none, present: none, compute: none}
	var dedicatedCompute bool
	for i := uint32(0); i < count; i++ {
		props[i].Deref()
		flags := props[i].QueueFlags

		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, i, surface, &supportsPresent)

		graphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		if graphics && supportsPresent.B() && (q.graphics == none || q.graphics != q.present) {
			q.graphics, q.present = i, i
		}
		if graphics && q.graphics == none {
			q.graphics = i
		}
		if supportsPresent.B() && q.present == none {
			q.present = i
		}
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			switch {
			case !graphics && !dedicatedCompute:
				q.compute, dedicatedCompute = i, true
			case q.compute == none:
				q.compute = i
			}
		}
	}

	if q.graphics == none {
		return q, errors.New("vulkan error: could not find a suitable queue family for the target Vulkan mode")
	}
	if q.present == none {
		return q, errors.New("vulkan error: could not find a queue family with present capabilities")
	}
	if q.compute == none {
		q.compute = q.graphics
	}
	return q, nil
}

func hasExtension(gpu vk.PhysicalDevice, name string) bool {
	var count uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)); err != nil {
		return false
	}
	props := make([]vk.ExtensionProperties, count)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, props)); err != nil {
		return false
	}
	for _, p := range props {
		p.Deref()
		if vk.ToString(p.ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// DeviceIsSuitable reports whether gpu can render to surface, and why not.
func DeviceIsSuitable(gpu vk.PhysicalDevice, surface vk.Surface) (bool, string) {
	if !hasExtension(gpu, vk.KhrSwapchainExtensionName) {
		return false, "no swapchain extension"
	}
	if _, err := findQueueFamilies(gpu, surface); err != nil {
		return false, err.Error()
	}

	var formats, modes uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formats, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &modes, nil)
	if formats == 0 || modes == 0 {
		return false, "surface has no formats or present modes"
	}
	return true, ""
}

// SelectDevice returns the first suitable device, preferring discrete GPUs.
func SelectDevice(gpus []vk.PhysicalDevice, surface vk.Surface, entry *log.Entry) (vk.PhysicalDevice, error) {
	var chosen vk.PhysicalDevice
	for _, gpu := range gpus {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		name := vk.ToString(props.DeviceName[:])

		if ok, reason := DeviceIsSuitable(gpu, surface); !ok {
			entry.WithFields(log.Fields{"device": name, "reason": reason}).Debug("device skipped")
			continue
		}
		if chosen == nil || props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			chosen = gpu
			entry.WithField("device", name).Info("device selected")
		}
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}
	if chosen == nil {
		return nil, ErrNoSuitableDevice
	}
	return chosen, nil
}

// vulkanDriver implements Driver on a vulkan logical device.
type vulkanDriver struct {
	log      *log.Entry
	gpu      vk.PhysicalDevice
	surface  vk.Surface
	device   vk.Device
	families queueFamilies
	cache    vk.PipelineCache

	graphicsQueue vk.Queue
	presentQueue  vk.Queue
	computeQueue  vk.Queue

	limits      Limits
	memoryTypes []MemoryType

	buffers         *registry[vk.Buffer]
	images          *registry[vk.Image]
	views           *registry[vk.ImageView]
	memories        *registry[vk.DeviceMemory]
	samplers        *registry[vk.Sampler]
	setLayouts      *registry[vk.DescriptorSetLayout]
	pools           *registry[vk.DescriptorPool]
	sets            *registry[vk.DescriptorSet]
	shaders         *registry[vk.ShaderModule]
	pipelineLayouts *registry[vk.PipelineLayout]
	pipelines       *registry[vk.Pipeline]
	renderPasses    *registry[vk.RenderPass]
	framebuffers    *registry[vk.Framebuffer]
	swapchains      *registry[vk.Swapchain]
	fences          *registry[vk.Fence]
	semaphores      *registry[vk.Semaphore]
	commandPools    *registry[vk.CommandPool]
	commandBuffers  *registry[vk.CommandBuffer]

	poolSets        map[Handle][]Handle
	swapchainImages map[Handle][]Handle
	passFormats     map[Handle][]gfx.Format
}

// NewVulkanDriver creates the logical device on gpu with its graphics,
// present and compute queues.
func NewVulkanDriver(gpu vk.PhysicalDevice, surface vk.Surface, cfg DeviceConfig, entry *log.Entry) (Driver, error) {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	families, err := findQueueFamilies(gpu, surface)
	if err != nil {
		return nil, err
	}

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(gpu, &features)
	features.Deref()

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	props.Limits.Deref()

	d := &vulkanDriver{
		log:      entry.WithField("component", "driver"),
		gpu:      gpu,
		surface:  surface,
		families: families,
		limits: Limits{
			FramebufferSamples: fromSampleFlags(props.Limits.FramebufferColorSampleCounts & props.Limits.FramebufferDepthSampleCounts),
		},
		buffers:         newRegistry[vk.Buffer](),
		images:          newRegistry[vk.Image](),
		views:           newRegistry[vk.ImageView](),
		memories:        newRegistry[vk.DeviceMemory](),
		samplers:        newRegistry[vk.Sampler](),
		setLayouts:      newRegistry[vk.DescriptorSetLayout](),
		pools:           newRegistry[vk.DescriptorPool](),
		sets:            newRegistry[vk.DescriptorSet](),
		shaders:         newRegistry[vk.ShaderModule](),
		pipelineLayouts: newRegistry[vk.PipelineLayout](),
		pipelines:       newRegistry[vk.Pipeline](),
		renderPasses:    newRegistry[vk.RenderPass](),
		framebuffers:    newRegistry[vk.Framebuffer](),
		swapchains:      newRegistry[vk.Swapchain](),
		fences:          newRegistry[vk.Fence](),
		semaphores:      newRegistry[vk.Semaphore](),
		commandPools:    newRegistry[vk.CommandPool](),
		commandBuffers:  newRegistry[vk.CommandBuffer](),
		poolSets:        make(map[Handle][]Handle),
		swapchainImages: make(map[Handle][]Handle),
		passFormats:     make(map[Handle][]gfx.Format),
	}

	enabled := vk.PhysicalDeviceFeatures{}
	if features.SamplerAnisotropy.B() {
		enabled.SamplerAnisotropy = vk.True
		d.limits.MaxSamplerAnisotropy = props.Limits.MaxSamplerAnisotropy
	}

	var queueInfos []vk.DeviceQueueCreateInfo
	for _, family := range families.unique() {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		})
	}

	extensions := safeStrings(append([]string{vk.KhrSwapchainExtensionName}, cfg.Extensions...))
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{enabled},
	}
	if err := check(vk.CreateDevice(gpu, &dci, nil, &d.device), "vk.CreateDevice()"); err != nil {
		return nil, err
	}

	vk.GetDeviceQueue(d.device, families.graphics, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(d.device, families.present, 0, &d.presentQueue)
	vk.GetDeviceQueue(d.device, families.compute, 0, &d.computeQueue)

	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if err := check(vk.CreatePipelineCache(d.device, &pcci, nil, &d.cache), "vk.CreatePipelineCache()"); err != nil {
		vk.DestroyDevice(d.device, nil)
		return nil, err
	}

	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(gpu, &memoryProperties)
	memoryProperties.Deref()
	for idx := uint32(0); idx < memoryProperties.MemoryTypeCount; idx++ {
		memoryProperties.MemoryTypes[idx].Deref()
		d.memoryTypes = append(d.memoryTypes, MemoryType{
			Properties: fromMemoryProperties(memoryProperties.MemoryTypes[idx].PropertyFlags),
			Heap:       memoryProperties.MemoryTypes[idx].HeapIndex,
		})
	}

	d.log.WithFields(log.Fields{
		"graphics": families.graphics,
		"present":  families.present,
		"compute":  families.compute,
	}).Info("logical device created")
	return d, nil
}

func (d *vulkanDriver) Limits() Limits {
	return d.limits
}

func (d *vulkanDriver) MemoryTypes() []MemoryType {
	return d.memoryTypes
}

// sharing returns concurrent sharing when graphics and compute run on
// different queue families.
func (d *vulkanDriver) sharing() (vk.SharingMode, []uint32) {
	if d.families.graphics == d.families.compute {
		return vk.SharingModeExclusive, nil
	}
	return vk.SharingModeConcurrent, []uint32{d.families.graphics, d.families.compute}
}

func requirements(req vk.MemoryRequirements) MemoryRequirements {
	req.Deref()
	return MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

func (d *vulkanDriver) CreateBuffer(size uint64, usage gfx.BufferUsage) (Handle, MemoryRequirements, error) {
	mode, families := d.sharing()
	bci := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(size),
		Usage:                 toBufferUsage(usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
	}
	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(d.device, &bci, nil, &buffer), "vk.CreateBuffer()"); err != nil {
		return NullHandle, MemoryRequirements{}, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &req)
	return d.buffers.add(buffer), requirements(req), nil
}

func (d *vulkanDriver) DestroyBuffer(h Handle) {
	if buffer, ok := d.buffers.take(h); ok {
		vk.DestroyBuffer(d.device, buffer, nil)
	}
}

func (d *vulkanDriver) CreateImage(info ImageInfo) (Handle, MemoryRequirements, error) {
	var flags vk.ImageCreateFlags
	if info.Cube {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	tiling := vk.ImageTilingOptimal
	if info.Tiling == gfx.TilingLinear {
		tiling = vk.ImageTilingLinear
	}
	mode, families := d.sharing()

	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    toFormat(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:             atLeastOne(info.MipLevels),
		ArrayLayers:           atLeastOne(info.Layers),
		Samples:               toSamples(info.Samples),
		Tiling:                tiling,
		Usage:                 toImageUsage(info.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		InitialLayout:         vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := check(vk.CreateImage(d.device, &ici, nil, &image), "vk.CreateImage()"); err != nil {
		return NullHandle, MemoryRequirements{}, err
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &req)
	return d.images.add(image), requirements(req), nil
}

func (d *vulkanDriver) DestroyImage(h Handle) {
	if image, ok := d.images.take(h); ok {
		vk.DestroyImage(d.device, image, nil)
	}
}

func atLeastOne(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

func (d *vulkanDriver) CreateImageView(info ViewInfo) (Handle, error) {
	viewType := vk.ImageViewType2d
	if info.Cube {
		viewType = vk.ImageViewTypeCube
	}
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.images.get(info.Image),
		ViewType: viewType,
		Format:   toFormat(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectOf(info.Format),
			LevelCount: atLeastOne(info.MipLevels),
			LayerCount: atLeastOne(info.Layers),
		},
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(d.device, &ivci, nil, &view), "vk.CreateImageView()"); err != nil {
		return NullHandle, err
	}
	return d.views.add(view), nil
}

func (d *vulkanDriver) DestroyImageView(h Handle) {
	if view, ok := d.views.take(h); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

func (d *vulkanDriver) AllocateMemory(size uint64, typeIndex uint32) (Handle, error) {
	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.device, &mai, nil, &memory), "vk.AllocateMemory()"); err != nil {
		return NullHandle, err
	}
	return d.memories.add(memory), nil
}

func (d *vulkanDriver) FreeMemory(h Handle) {
	if memory, ok := d.memories.take(h); ok {
		vk.FreeMemory(d.device, memory, nil)
	}
}

func (d *vulkanDriver) BindBufferMemory(buffer, memory Handle) error {
	return check(vk.BindBufferMemory(d.device, d.buffers.get(buffer), d.memories.get(memory), 0), "vk.BindBufferMemory()")
}

func (d *vulkanDriver) BindImageMemory(image, memory Handle) error {
	return check(vk.BindImageMemory(d.device, d.images.get(image), d.memories.get(memory), 0), "vk.BindImageMemory()")
}

func (d *vulkanDriver) MapMemory(memory Handle, size uint64) ([]byte, error) {
	var data unsafe.Pointer
	if err := check(vk.MapMemory(d.device, d.memories.get(memory), 0, vk.DeviceSize(size), 0, &data), "vk.MapMemory()"); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(data), size), nil
}

func (d *vulkanDriver) UnmapMemory(memory Handle) {
	vk.UnmapMemory(d.device, d.memories.get(memory))
}

func (d *vulkanDriver) CreateSampler(info SamplerInfo) (Handle, error) {
	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        toBool(info.Anisotropy > 1),
		MaxAnisotropy:           info.Anisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MaxLod:                  float32(atLeastOne(info.MipLevels)),
	}
	var sampler vk.Sampler
	if err := check(vk.CreateSampler(d.device, &sci, nil, &sampler), "vk.CreateSampler()"); err != nil {
		return NullHandle, err
	}
	return d.samplers.add(sampler), nil
}

func (d *vulkanDriver) DestroySampler(h Handle) {
	if sampler, ok := d.samplers.take(h); ok {
		vk.DestroySampler(d.device, sampler, nil)
	}
}

func (d *vulkanDriver) CreateDescriptorSetLayout(bindings []gfx.LayoutBinding) (Handle, error) {
	native := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		native[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toDescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      toShaderStages(b.Stages),
		}
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(native)),
		PBindings:    native,
	}
	var layout vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &layout), "vk.CreateDescriptorSetLayout()"); err != nil {
		return NullHandle, err
	}
	return d.setLayouts.add(layout), nil
}

func (d *vulkanDriver) DestroyDescriptorSetLayout(h Handle) {
	if layout, ok := d.setLayouts.take(h); ok {
		vk.DestroyDescriptorSetLayout(d.device, layout, nil)
	}
}

func (d *vulkanDriver) CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (Handle, error) {
	var native []vk.DescriptorPoolSize
	for _, s := range sizes {
		if s.Count == 0 {
			continue
		}
		native = append(native, vk.DescriptorPoolSize{
			Type:            toDescriptorType(s.Type),
			DescriptorCount: s.Count,
		})
	}
	// A pool needs at least one size even when its sets are empty.
	if len(native) == 0 {
		native = append(native, vk.DescriptorPoolSize{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1})
	}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(native)),
		PPoolSizes:    native,
	}
	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.device, &dpci, nil, &pool), "vk.CreateDescriptorPool()"); err != nil {
		return NullHandle, err
	}
	return d.pools.add(pool), nil
}

func (d *vulkanDriver) DestroyDescriptorPool(h Handle) {
	pool, ok := d.pools.take(h)
	if !ok {
		return
	}
	for _, set := range d.poolSets[h] {
		d.sets.take(set)
	}
	delete(d.poolSets, h)
	vk.DestroyDescriptorPool(d.device, pool, nil)
}

func (d *vulkanDriver) AllocateDescriptorSets(pool Handle, layouts []Handle) ([]Handle, error) {
	sets := make([]Handle, len(layouts))
	for i, layout := range layouts {
		dsai := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     d.pools.get(pool),
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{d.setLayouts.get(layout)},
		}
		var set vk.DescriptorSet
		if err := check(vk.AllocateDescriptorSets(d.device, &dsai, &set), "vk.AllocateDescriptorSets()"); err != nil {
			return nil, err
		}
		sets[i] = d.sets.add(set)
		d.poolSets[pool] = append(d.poolSets[pool], sets[i])
	}
	return sets, nil
}

func (d *vulkanDriver) UpdateDescriptorSets(writes []DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	native := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		native[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.sets.get(w.Set),
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  toDescriptorType(w.Type),
		}
		switch w.Type {
		case gfx.UniformBufferDescriptor, gfx.StorageBufferDescriptor:
			size := wholeSize
			if w.Range > 0 {
				size = vk.DeviceSize(w.Range)
			}
			native[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: d.buffers.get(w.Buffer),
				Range:  size,
			}}
		default:
			native[i].PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     d.samplers.get(w.Sampler),
				ImageView:   d.views.get(w.View),
				ImageLayout: toLayout(w.Layout),
			}}
		}
	}
	vk.UpdateDescriptorSets(d.device, uint32(len(native)), native, 0, nil)
}

func (d *vulkanDriver) CreateShaderModule(code []byte) (Handle, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}
	var shader vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.device, &smci, nil, &shader), "vk.CreateShaderModule()"); err != nil {
		return NullHandle, err
	}
	return d.shaders.add(shader), nil
}

func (d *vulkanDriver) DestroyShaderModule(h Handle) {
	if shader, ok := d.shaders.take(h); ok {
		vk.DestroyShaderModule(d.device, shader, nil)
	}
}

func (d *vulkanDriver) CreatePipelineLayout(sets []Handle, push []PushConstantRange) (Handle, error) {
	layouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		layouts[i] = d.setLayouts.get(s)
	}
	ranges := make([]vk.PushConstantRange, len(push))
	for i, r := range push {
		ranges[i] = vk.PushConstantRange{
			StageFlags: toShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(d.device, &plci, nil, &layout), "vk.CreatePipelineLayout()"); err != nil {
		return NullHandle, err
	}
	return d.pipelineLayouts.add(layout), nil
}

func (d *vulkanDriver) DestroyPipelineLayout(h Handle) {
	if layout, ok := d.pipelineLayouts.take(h); ok {
		vk.DestroyPipelineLayout(d.device, layout, nil)
	}
}

func vertexInput(layout gfx.VertexLayout) *vk.PipelineVertexInputStateCreateInfo {
	info := &vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if layout.Empty() {
		return info
	}
	info.VertexBindingDescriptionCount = 1
	info.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    layout.Stride,
		InputRate: vk.VertexInputRateVertex,
	}}
	for _, a := range layout.Attributes {
		info.PVertexAttributeDescriptions = append(info.PVertexAttributeDescriptions, vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   toFormat(a.Format),
			Offset:   a.Offset,
		})
	}
	info.VertexAttributeDescriptionCount = uint32(len(info.PVertexAttributeDescriptions))
	return info
}

func colorBlend(blend gfx.BlendState) vk.PipelineColorBlendAttachmentState {
	return vk.PipelineColorBlendAttachmentState{
		BlendEnable:         toBool(blend.Enabled),
		SrcColorBlendFactor: blendFactors[blend.SrcColor],
		DstColorBlendFactor: blendFactors[blend.DstColor],
		ColorBlendOp:        blendOps[blend.ColorOp],
		SrcAlphaBlendFactor: blendFactors[blend.SrcAlpha],
		DstAlphaBlendFactor: blendFactors[blend.DstAlpha],
		AlphaBlendOp:        blendOps[blend.AlphaOp],
		ColorWriteMask:      0xF,
	}
}

func (d *vulkanDriver) CreateGraphicsPipeline(info GraphicsPipelineInfo) (Handle, error) {
	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: d.shaders.get(info.Vertex),
			PName:  safeString(info.EntryPoint),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: d.shaders.get(info.Fragment),
			PName:  safeString(info.EntryPoint),
		},
	}

	attachments := make([]vk.PipelineColorBlendAttachmentState, info.ColorAttachments)
	for i := range attachments {
		attachments[i] = colorBlend(info.Blend)
	}

	stencil := vk.StencilOpState{
		FailOp:    vk.StencilOpKeep,
		PassOp:    vk.StencilOpKeep,
		CompareOp: vk.CompareOpAlways,
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:             vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:        uint32(len(stages)),
		PStages:           stages,
		PVertexInputState: vertexInput(info.VertexLayout),
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: topologies[info.Topology],
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: polygonModes[info.Raster.Polygon],
			CullMode:    vk.CullModeFlags(cullModes[info.Raster.Cull]),
			FrontFace:   frontFaces[info.Raster.Front],
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       toBool(info.Depth.Test),
			DepthWriteEnable:      toBool(info.Depth.Write),
			DepthCompareOp:        compareOps[info.Depth.Compare],
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
			Back:                  stencil,
			Front:                 stencil,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: toSamples(info.Samples),
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     d.pipelineLayouts.get(info.Layout),
		RenderPass: d.renderPasses.get(info.RenderPass),
		Subpass:    info.Subpass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := check(vk.CreateGraphicsPipelines(d.device, d.cache, uint32(len(gpci)), gpci, nil, pipelines), "vk.CreateGraphicsPipelines()"); err != nil {
		return NullHandle, err
	}
	return d.pipelines.add(pipelines[0]), nil
}

func (d *vulkanDriver) CreateComputePipeline(info ComputePipelineInfo) (Handle, error) {
	cpci := []vk.ComputePipelineCreateInfo{{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: d.shaders.get(info.Shader),
			PName:  safeString(info.EntryPoint),
		},
		Layout: d.pipelineLayouts.get(info.Layout),
	}}

	pipelines := make([]vk.Pipeline, len(cpci))
	if err := check(vk.CreateComputePipelines(d.device, d.cache, uint32(len(cpci)), cpci, nil, pipelines), "vk.CreateComputePipelines()"); err != nil {
		return NullHandle, err
	}
	return d.pipelines.add(pipelines[0]), nil
}

func (d *vulkanDriver) DestroyPipeline(h Handle) {
	if pipeline, ok := d.pipelines.take(h); ok {
		vk.DestroyPipeline(d.device, pipeline, nil)
	}
}

func attachmentRefs(refs []AttachmentRef) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	native := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		native[i] = vk.AttachmentReference{
			Attachment: r.Attachment,
			Layout:     toLayout(r.Layout),
		}
	}
	return native
}

func (d *vulkanDriver) CreateRenderPass(info RenderPassInfo) (Handle, error) {
	attachments := make([]vk.AttachmentDescription, len(info.Attachments))
	formats := make([]gfx.Format, len(info.Attachments))
	for i, a := range info.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         toFormat(a.Format),
			Samples:        toSamples(a.Samples),
			LoadOp:         loadOps[a.Load],
			StoreOp:        storeOps[a.Store],
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  toLayout(a.Initial),
			FinalLayout:    toLayout(a.Final),
		}
		formats[i] = a.Format
	}

	subpasses := make([]vk.SubpassDescription, len(info.Subpasses))
	for i, s := range info.Subpasses {
		subpasses[i] = vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			InputAttachmentCount: uint32(len(s.Inputs)),
			PInputAttachments:    attachmentRefs(s.Inputs),
			ColorAttachmentCount: uint32(len(s.Color)),
			PColorAttachments:    attachmentRefs(s.Color),
			PResolveAttachments:  attachmentRefs(s.Resolve),
		}
		if s.Depth != nil {
			subpasses[i].PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: s.Depth.Attachment,
				Layout:     toLayout(s.Depth.Layout),
			}
		}
	}

	dependencies := make([]vk.SubpassDependency, len(info.Dependencies))
	for i, dep := range info.Dependencies {
		var flags vk.DependencyFlags
		if dep.ByRegion {
			flags = vk.DependencyFlags(vk.DependencyByRegionBit)
		}
		dependencies[i] = vk.SubpassDependency{
			SrcSubpass:      dep.Src,
			DstSubpass:      dep.Dst,
			SrcStageMask:    toStages(dep.Masks.SrcStage),
			DstStageMask:    toStages(dep.Masks.DstStage),
			SrcAccessMask:   toAccess(dep.Masks.SrcAccess),
			DstAccessMask:   toAccess(dep.Masks.DstAccess),
			DependencyFlags: flags,
		}
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	var renderPass vk.RenderPass
	if err := check(vk.CreateRenderPass(d.device, &rpci, nil, &renderPass), "vk.CreateRenderPass()"); err != nil {
		return NullHandle, err
	}
	h := d.renderPasses.add(renderPass)
	d.passFormats[h] = formats
	return h, nil
}

func (d *vulkanDriver) DestroyRenderPass(h Handle) {
	if renderPass, ok := d.renderPasses.take(h); ok {
		delete(d.passFormats, h)
		vk.DestroyRenderPass(d.device, renderPass, nil)
	}
}

func (d *vulkanDriver) CreateFramebuffer(renderPass Handle, views []Handle, extent gfx.Extent2D) (Handle, error) {
	native := make([]vk.ImageView, len(views))
	for i, v := range views {
		native[i] = d.views.get(v)
	}
	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPasses.get(renderPass),
		AttachmentCount: uint32(len(native)),
		PAttachments:    native,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.device, &fci, nil, &framebuffer), "vk.CreateFramebuffer()"); err != nil {
		return NullHandle, err
	}
	return d.framebuffers.add(framebuffer), nil
}

func (d *vulkanDriver) DestroyFramebuffer(h Handle) {
	if framebuffer, ok := d.framebuffers.take(h); ok {
		vk.DestroyFramebuffer(d.device, framebuffer, nil)
	}
}

func extent(e vk.Extent2D) gfx.Extent2D {
	e.Deref()
	return gfx.Extent2D{Width: e.Width, Height: e.Height}
}

func (d *vulkanDriver) SurfaceCapabilities() (SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps), "vk.GetPhysicalDeviceSurfaceCapabilities()"); err != nil {
		return SurfaceCapabilities{}, err
	}
	caps.Deref()
	return SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: extent(caps.CurrentExtent),
		MinExtent:     extent(caps.MinImageExtent),
		MaxExtent:     extent(caps.MaxImageExtent),
	}, nil
}

func (d *vulkanDriver) SurfaceFormats() ([]SurfaceFormat, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, nil), "vk.GetPhysicalDeviceSurfaceFormats()"); err != nil {
		return nil, err
	}
	native := make([]vk.SurfaceFormat, count)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, native), "vk.GetPhysicalDeviceSurfaceFormats()"); err != nil {
		return nil, err
	}

	var formats []SurfaceFormat
	for _, f := range native {
		f.Deref()
		space, ok := fromColorSpace(f.ColorSpace)
		if !ok {
			continue
		}
		format := fromFormat(f.Format)
		if format == gfx.FormatUndefined && f.Format != vk.FormatUndefined {
			continue
		}
		formats = append(formats, SurfaceFormat{Format: format, ColorSpace: space})
	}
	return formats, nil
}

func (d *vulkanDriver) PresentModes() ([]gfx.PresentMode, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, nil), "vk.GetPhysicalDeviceSurfacePresentModes()"); err != nil {
		return nil, err
	}
	native := make([]vk.PresentMode, count)
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, native), "vk.GetPhysicalDeviceSurfacePresentModes()"); err != nil {
		return nil, err
	}

	var modes []gfx.PresentMode
	for _, m := range native {
		if mode, ok := fromPresentMode(m); ok {
			modes = append(modes, mode)
		}
	}
	return modes, nil
}

func (d *vulkanDriver) FormatSupported(format gfx.Format, usage gfx.ImageUsage) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.gpu, toFormat(format), &props)
	props.Deref()
	required := toFormatFeatures(usage)
	return props.OptimalTilingFeatures&required == required
}

func (d *vulkanDriver) CreateSwapchain(info SwapchainInfo) (Handle, error) {
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps), "vk.GetPhysicalDeviceSurfaceCapabilities()"); err != nil {
		return NullHandle, err
	}
	caps.Deref()

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	mode := vk.SharingModeExclusive
	var families []uint32
	if d.families.graphics != d.families.present {
		mode = vk.SharingModeConcurrent
		families = []uint32{d.families.graphics, d.families.present}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.surface,
		MinImageCount:   info.ImageCount,
		ImageFormat:     toFormat(info.Format.Format),
		ImageColorSpace: colorSpaces[info.Format.ColorSpace],
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:          caps.CurrentTransform,
		CompositeAlpha:        compositeAlpha,
		PresentMode:           presentModes[info.PresentMode],
		Clipped:               vk.True,
		ImageArrayLayers:      1,
		ImageSharingMode:      mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
	}
	var swapchain vk.Swapchain
	if err := check(vk.CreateSwapchain(d.device, &scci, nil, &swapchain), "vk.CreateSwapchain()"); err != nil {
		return NullHandle, err
	}
	return d.swapchains.add(swapchain), nil
}

func (d *vulkanDriver) SwapchainImages(h Handle) ([]Handle, error) {
	if images, ok := d.swapchainImages[h]; ok {
		return images, nil
	}
	swapchain := d.swapchains.get(h)

	var count uint32
	if err := check(vk.GetSwapchainImages(d.device, swapchain, &count, nil), "vk.GetSwapchainImages(num)"); err != nil {
		return nil, err
	}
	native := make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(d.device, swapchain, &count, native), "vk.GetSwapchainImages(images)"); err != nil {
		return nil, err
	}

	images := make([]Handle, count)
	for i, img := range native {
		images[i] = d.images.add(img)
	}
	d.swapchainImages[h] = images
	return images, nil
}

func (d *vulkanDriver) DestroySwapchain(h Handle) {
	swapchain, ok := d.swapchains.take(h)
	if !ok {
		return
	}
	// Swapchain images are owned by the swapchain.
	for _, img := range d.swapchainImages[h] {
		d.images.take(img)
	}
	delete(d.swapchainImages, h)
	vk.DestroySwapchain(d.device, swapchain, nil)
}

func presentStatus(res vk.Result, call string) (Status, error) {
	switch res {
	case vk.Success:
		return StatusSuccess, nil
	case vk.Suboptimal:
		return StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return StatusOutOfDate, nil
	}
	return StatusSuccess, check(res, call)
}

func (d *vulkanDriver) AcquireNextImage(swapchain, semaphore Handle) (uint32, Status, error) {
	var index uint32
	res := vk.AcquireNextImage(d.device, d.swapchains.get(swapchain), math.MaxUint64, d.semaphores.get(semaphore), nil, &index)
	status, err := presentStatus(res, "vk.AcquireNextImage()")
	return index, status, err
}

func (d *vulkanDriver) QueuePresent(swapchain Handle, index uint32, wait Handle) (Status, error) {
	pi := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{d.semaphores.get(wait)},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchains.get(swapchain)},
		PImageIndices:      []uint32{index},
	}
	return presentStatus(vk.QueuePresent(d.presentQueue, &pi), "vk.QueuePresent()")
}

func (d *vulkanDriver) CreateFence(signaled bool) (Handle, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check(vk.CreateFence(d.device, &fci, nil, &fence), "vk.CreateFence()"); err != nil {
		return NullHandle, err
	}
	return d.fences.add(fence), nil
}

func (d *vulkanDriver) WaitForFence(h Handle) error {
	return check(vk.WaitForFences(d.device, 1, []vk.Fence{d.fences.get(h)}, vk.True, math.MaxUint64), "vk.WaitForFences()")
}

func (d *vulkanDriver) ResetFence(h Handle) error {
	return check(vk.ResetFences(d.device, 1, []vk.Fence{d.fences.get(h)}), "vk.ResetFences()")
}

func (d *vulkanDriver) DestroyFence(h Handle) {
	if fence, ok := d.fences.take(h); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

func (d *vulkanDriver) CreateSemaphore() (Handle, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check(vk.CreateSemaphore(d.device, &sci, nil, &semaphore), "vk.CreateSemaphore()"); err != nil {
		return NullHandle, err
	}
	return d.semaphores.add(semaphore), nil
}

func (d *vulkanDriver) DestroySemaphore(h Handle) {
	if semaphore, ok := d.semaphores.take(h); ok {
		vk.DestroySemaphore(d.device, semaphore, nil)
	}
}

func (d *vulkanDriver) queue(q Queue) (vk.Queue, uint32) {
	if q == ComputeQueue {
		return d.computeQueue, d.families.compute
	}
	return d.graphicsQueue, d.families.graphics
}

func (d *vulkanDriver) CreateCommandPool(q Queue) (Handle, error) {
	_, family := d.queue(q)
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.device, &cpci, nil, &pool), "vk.CreateCommandPool()"); err != nil {
		return NullHandle, err
	}
	return d.commandPools.add(pool), nil
}

func (d *vulkanDriver) DestroyCommandPool(h Handle) {
	if pool, ok := d.commandPools.take(h); ok {
		vk.DestroyCommandPool(d.device, pool, nil)
	}
}

func (d *vulkanDriver) AllocateCommandBuffers(pool Handle, count int) ([]Handle, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPools.get(pool),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	native := make([]vk.CommandBuffer, count)
	if err := check(vk.AllocateCommandBuffers(d.device, &cbai, native), "vk.AllocateCommandBuffers()"); err != nil {
		return nil, err
	}
	buffers := make([]Handle, count)
	for i, cb := range native {
		buffers[i] = d.commandBuffers.add(cb)
	}
	return buffers, nil
}

func (d *vulkanDriver) FreeCommandBuffers(pool Handle, buffers []Handle) {
	native := make([]vk.CommandBuffer, 0, len(buffers))
	for _, h := range buffers {
		if cb, ok := d.commandBuffers.take(h); ok {
			native = append(native, cb)
		}
	}
	if len(native) > 0 {
		vk.FreeCommandBuffers(d.device, d.commandPools.get(pool), uint32(len(native)), native)
	}
}

func (d *vulkanDriver) BeginCommandBuffer(cb Handle, oneTime bool) error {
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		cbbi.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check(vk.BeginCommandBuffer(d.commandBuffers.get(cb), &cbbi), "vk.BeginCommandBuffer()")
}

func (d *vulkanDriver) EndCommandBuffer(cb Handle) error {
	return check(vk.EndCommandBuffer(d.commandBuffers.get(cb)), "vk.EndCommandBuffer()")
}

func (d *vulkanDriver) ResetCommandBuffer(cb Handle) error {
	return check(vk.ResetCommandBuffer(d.commandBuffers.get(cb), 0), "vk.ResetCommandBuffer()")
}

func (d *vulkanDriver) QueueSubmit(q Queue, info SubmitInfo) error {
	queue, _ := d.queue(q)

	buffers := make([]vk.CommandBuffer, len(info.Buffers))
	for i, h := range info.Buffers {
		buffers[i] = d.commandBuffers.get(h)
	}
	waits := make([]vk.Semaphore, len(info.Wait))
	stages := make([]vk.PipelineStageFlags, len(info.Wait))
	for i, h := range info.Wait {
		waits[i] = d.semaphores.get(h)
		stages[i] = toStages(info.WaitStages[i])
	}
	signals := make([]vk.Semaphore, len(info.Signal))
	for i, h := range info.Signal {
		signals[i] = d.semaphores.get(h)
	}

	si := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	return check(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{si}, d.fences.get(info.Fence)), "vk.QueueSubmit()")
}

func (d *vulkanDriver) QueueWaitIdle(q Queue) error {
	queue, _ := d.queue(q)
	return check(vk.QueueWaitIdle(queue), "vk.QueueWaitIdle()")
}

func (d *vulkanDriver) DeviceWaitIdle() error {
	return check(vk.DeviceWaitIdle(d.device), "vk.DeviceWaitIdle()")
}

func (d *vulkanDriver) CmdPipelineBarrier(cb Handle, barriers ...ImageBarrier) {
	for _, b := range barriers {
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       toAccess(b.Masks.SrcAccess),
			DstAccessMask:       toAccess(b.Masks.DstAccess),
			OldLayout:           toLayout(b.Old),
			NewLayout:           toLayout(b.New),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               d.images.get(b.Image),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: aspectOf(b.Format),
				LevelCount: atLeastOne(b.MipLevels),
				LayerCount: atLeastOne(b.Layers),
			},
		}
		vk.CmdPipelineBarrier(d.commandBuffers.get(cb), toStages(b.Masks.SrcStage), toStages(b.Masks.DstStage), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	}
}

func (d *vulkanDriver) CmdCopyBuffer(cb, src, dst Handle, size uint64) {
	bc := vk.BufferCopy{
		Size: vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(d.commandBuffers.get(cb), d.buffers.get(src), d.buffers.get(dst), 1, []vk.BufferCopy{bc})
}

func (d *vulkanDriver) CmdCopyBufferToImage(cb, src, dst Handle, regions []BufferImageCopy) {
	native := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		native[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.Offset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       r.MipLevel,
				BaseArrayLayer: r.Layer,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{
				Width:  r.Extent.Width,
				Height: r.Extent.Height,
				Depth:  1,
			},
		}
	}
	vk.CmdCopyBufferToImage(d.commandBuffers.get(cb), d.buffers.get(src), d.images.get(dst), vk.ImageLayoutTransferDstOptimal, uint32(len(native)), native)
}

func (d *vulkanDriver) CmdBeginRenderPass(cb Handle, begin RenderPassBegin) {
	formats := d.passFormats[begin.RenderPass]
	clearValues := make([]vk.ClearValue, len(begin.Clear))
	for i, c := range begin.Clear {
		if i < len(formats) && formats[i].IsDepth() {
			clearValues[i].SetDepthStencil(c.Depth, c.Stencil)
			continue
		}
		clearValues[i].SetColor(c.Color[:])
	}

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPasses.get(begin.RenderPass),
		Framebuffer: d.framebuffers.get(begin.Framebuffer),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{
				X: 0, Y: 0,
			},
			Extent: vk.Extent2D{
				Width:  begin.Extent.Width,
				Height: begin.Extent.Height,
			},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(d.commandBuffers.get(cb), &rpbi, vk.SubpassContentsInline)
}

func (d *vulkanDriver) CmdNextSubpass(cb Handle) {
	vk.CmdNextSubpass(d.commandBuffers.get(cb), vk.SubpassContentsInline)
}

func (d *vulkanDriver) CmdEndRenderPass(cb Handle) {
	vk.CmdEndRenderPass(d.commandBuffers.get(cb))
}

func (d *vulkanDriver) CmdBindPipeline(cb Handle, point BindPoint, pipeline Handle) {
	vk.CmdBindPipeline(d.commandBuffers.get(cb), bindPoints[point], d.pipelines.get(pipeline))
}

func (d *vulkanDriver) CmdBindDescriptorSets(cb Handle, point BindPoint, layout Handle, first uint32, sets []Handle) {
	native := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		native[i] = d.sets.get(s)
	}
	vk.CmdBindDescriptorSets(d.commandBuffers.get(cb), bindPoints[point], d.pipelineLayouts.get(layout), first, uint32(len(native)), native, 0, nil)
}

func (d *vulkanDriver) CmdBindVertexBuffers(cb Handle, buffers []Handle) {
	native := make([]vk.Buffer, len(buffers))
	offsets := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		native[i] = d.buffers.get(b)
	}
	vk.CmdBindVertexBuffers(d.commandBuffers.get(cb), 0, uint32(len(native)), native, offsets)
}

func (d *vulkanDriver) CmdBindIndexBuffer(cb, buffer Handle, indexType gfx.IndexType) {
	vk.CmdBindIndexBuffer(d.commandBuffers.get(cb), d.buffers.get(buffer), 0, indexTypes[indexType])
}

func (d *vulkanDriver) CmdPushConstants(cb, layout Handle, stages gfx.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(d.commandBuffers.get(cb), d.pipelineLayouts.get(layout), toShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *vulkanDriver) CmdSetViewport(cb Handle, e gfx.Extent2D) {
	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(e.Width),
		Height:   float32(e.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(d.commandBuffers.get(cb), 0, 1, []vk.Viewport{viewport})
}

func (d *vulkanDriver) CmdSetScissor(cb Handle, e gfx.Extent2D) {
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{
			X: 0,
			Y: 0,
		},
		Extent: vk.Extent2D{
			Width:  e.Width,
			Height: e.Height,
		},
	}
	vk.CmdSetScissor(d.commandBuffers.get(cb), 0, 1, []vk.Rect2D{scissor})
}

func (d *vulkanDriver) CmdDraw(cb Handle, vertices, instances uint32) {
	vk.CmdDraw(d.commandBuffers.get(cb), vertices, instances, 0, 0)
}

func (d *vulkanDriver) CmdDrawIndexed(cb Handle, indices, instances uint32) {
	vk.CmdDrawIndexed(d.commandBuffers.get(cb), indices, instances, 0, 0, 0)
}

func (d *vulkanDriver) CmdDispatch(cb Handle, x, y, z uint32) {
	vk.CmdDispatch(d.commandBuffers.get(cb), x, y, z)
}

// Destroy destroys the pipeline cache and the logical device. Everything
// created from the device has to be destroyed before.
func (d *vulkanDriver) Destroy() {
	vk.DestroyPipelineCache(d.device, d.cache, nil)
	vk.DestroyDevice(d.device, nil)
	d.log.Debug("logical device destroyed")
}
