package engine

import (
	"unsafe"

	"github.com/xlab/linmath"
	vk "github.com/vulkan-go/vulkan"
)

// PushConstants is the block the background compute shader reads. Its
// layout matches the shader's push_constant block: four vec4 values.
type PushConstants struct {
	Top    linmath.Vec4
	Bottom linmath.Vec4
	Flash  linmath.Vec4
	Unused linmath.Vec4
}

const pushConstantsSize = uint32(unsafe.Sizeof(PushConstants{}))

// ComputePipeline is a compute pipeline with its layout.
type ComputePipeline struct {
	Layout   vk.PipelineLayout
	Pipeline vk.Pipeline
}

// NewComputePipeline builds a pipeline running code, a SPIR-V module with a
// "main" entry point, against one descriptor set of setLayout and the
// PushConstants block.
func NewComputePipeline(
	dev *Device,
	setLayout vk.DescriptorSetLayout,
	code []uint32,
) (*ComputePipeline, error) {
	p := &ComputePipeline{}

	pushConstantRange := vk.PushConstantRange{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		Offset:     0,
		Size:       pushConstantsSize,
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{setLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vk.PushConstantRange{pushConstantRange},
	}

	var pipelineLayout vk.PipelineLayout
	res := vk.CreatePipelineLayout(dev.Handle, &layoutInfo, nil, &pipelineLayout)
	if err := vkResult(res, "vkCreatePipelineLayout"); err != nil {
		return nil, err
	}
	p.Layout = pipelineLayout

	shaderModule, err := createShaderModule(dev, code)
	if err != nil {
		dev.DestroyPipelineLayout(p.Layout)
		return nil, err
	}

	// The module is only needed while the pipeline is being created.
	var scope DeletionQueue
	defer scope.Flush(dev)
	scope.Push(DestroyShaderModule(shaderModule))

	stageInfo := vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageComputeBit,
		Module: shaderModule,
		PName:  "main\x00",
	}

	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stageInfo,
		Layout: p.Layout,
	}

	pipelines := make([]vk.Pipeline, 1)
	res = vk.CreateComputePipelines(
		dev.Handle,
		vk.PipelineCache(vk.NullHandle),
		1,
		[]vk.ComputePipelineCreateInfo{pipelineInfo},
		nil,
		pipelines,
	)
	if err := vkResult(res, "vkCreateComputePipelines"); err != nil {
		dev.DestroyPipelineLayout(p.Layout)
		return nil, err
	}
	p.Pipeline = pipelines[0]

	return p, nil
}

// Deletions returns what releases the pipeline, in push order.
func (p *ComputePipeline) Deletions() []Deletion {
	return []Deletion{
		DestroyPipelineLayout(p.Layout),
		DestroyPipeline(p.Pipeline),
	}
}

// Bind records binding the pipeline and set for the following dispatches.
func (p *ComputePipeline) Bind(cmd vk.CommandBuffer, set vk.DescriptorSet) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointCompute, p.Pipeline)
	vk.CmdBindDescriptorSets(
		cmd,
		vk.PipelineBindPointCompute,
		p.Layout,
		0, 1, []vk.DescriptorSet{set},
		0, nil,
	)
}

// Push records updating the push constants of the bound pipeline.
func (p *ComputePipeline) Push(cmd vk.CommandBuffer, pc *PushConstants) {
	vk.CmdPushConstants(
		cmd,
		p.Layout,
		vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		0,
		pushConstantsSize,
		unsafe.Pointer(pc),
	)
}

func createShaderModule(dev *Device, code []uint32) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	var shaderModule vk.ShaderModule
	res := vk.CreateShaderModule(dev.Handle, &createInfo, nil, &shaderModule)
	if err := vkResult(res, "vkCreateShaderModule"); err != nil {
		return vk.NullShaderModule, err
	}
	return shaderModule, nil
}
