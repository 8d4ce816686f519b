package vulcany

import (
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorPool wraps a vulkan descriptor pool. Record callbacks allocate
// their sets from one of these; Reset between graph cycles returns every set
// at once, which is cheaper than freeing them one by one.
type DescriptorPool struct {
	Device           *Device
	VKDescriptorPool vk.DescriptorPool

	sizes []vk.DescriptorPoolSize
}

func (d *Device) NewDescriptorPool() *DescriptorPool {
	return &DescriptorPool{Device: d}
}

// AddPoolSize declares how many descriptors of one type the pool will hold.
func (d *DescriptorPool) AddPoolSize(dtype vk.DescriptorType, count int) {
	d.sizes = append(d.sizes, vk.DescriptorPoolSize{
		Type:            dtype,
		DescriptorCount: uint32(count),
	})
}

// CreateDescriptorPool creates the native pool behind a declared DescriptorPool.
func (d *Device) CreateDescriptorPool(pool *DescriptorPool, maxSets int) (*DescriptorPool, error) {
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(pool.sizes)),
		PPoolSizes:    pool.sizes,
	}

	var native vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(d.VKDevice, &info, nil, &native)); err != nil {
		return nil, err
	}

	pool.Device = d
	pool.VKDescriptorPool = native
	return pool, nil
}

// Allocate allocates one descriptor set against the given layouts.
func (d *DescriptorPool) Allocate(layouts ...*DescriptorSetLayout) (*DescriptorSet, error) {
	native := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		native[i] = l.VKDescriptorSetLayout
	}

	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.VKDescriptorPool,
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        native,
	}

	var set vk.DescriptorSet
	if err := vk.Error(vk.AllocateDescriptorSets(d.Device.VKDevice, &info, &set)); err != nil {
		return nil, err
	}

	return &DescriptorSet{
		Device:          d.Device,
		DescriptorPool:  d,
		VKDescriptorSet: set,
	}, nil
}

// Reset returns every set allocated from the pool. Sets still referenced by
// in-flight command buffers must not be reset; wait on the recorder first.
func (d *DescriptorPool) Reset() error {
	return vk.Error(vk.ResetDescriptorPool(d.Device.VKDevice, d.VKDescriptorPool, 0))
}

func (d *DescriptorPool) Free(ds *DescriptorSet) error {
	set := ds.VKDescriptorSet
	return vk.Error(vk.FreeDescriptorSets(d.Device.VKDevice, d.VKDescriptorPool, 1, &set))
}

func (d *DescriptorPool) Destroy() {
	vk.DestroyDescriptorPool(d.Device.VKDevice, d.VKDescriptorPool, nil)
}
