package vulcany

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func testImageDesc() ImageDesc {
	return ImageDesc{
		Extent: vk.Extent2D{Width: 64, Height: 64},
		Format: vk.FormatR8g8b8a8Unorm,
		Usage:  vk.ImageUsageStorageBit | vk.ImageUsageSampledBit,
		Tiling: vk.ImageTilingOptimal,
	}
}

func testBufferDesc() BufferDesc {
	return BufferDesc{Size: 1024, Usage: vk.BufferUsageStorageBufferBit}
}

func TestDeclareResources(t *testing.T) {
	g := NewGraph()

	img := g.DeclareImage("color", testImageDesc())
	buf := g.DeclareBuffer("lut", testBufferDesc())

	assert.Equal(t, 2, g.NumResources())
	assert.Equal(t, "color", g.ResourceName(img))
	assert.Equal(t, "lut", g.ResourceName(buf))
}

func TestAddPassUnknownResource(t *testing.T) {
	g := NewGraph()
	img := g.DeclareImage("color", testImageDesc())

	g.Reset()

	_, err := g.AddPass(Pass{
		Name:     "stale",
		Accesses: []Access{ColorWrite(img)},
	})
	require.Error(t, err)

	var unknown *UnknownResourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "stale", unknown.Pass)
	assert.Equal(t, 0, g.NumPasses())
}

func TestAddPassDuplicateAccess(t *testing.T) {
	g := NewGraph()
	img := g.DeclareImage("color", testImageDesc())

	_, err := g.AddPass(Pass{
		Name:     "doublebook",
		Accesses: []Access{SampledRead(img, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)), ColorWrite(img)},
	})
	require.Error(t, err)

	var conflict *ConflictingAccessError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "color", conflict.Resource)
	assert.Equal(t, 0, g.NumPasses())
}

func TestDuplicateImport(t *testing.T) {
	g := NewGraph()

	var external vk.Image
	_, err := g.ImportImage("swapchain", external, testImageDesc(), ImageState{})
	require.NoError(t, err)

	_, err = g.ImportImage("again", external, testImageDesc(), ImageState{})
	require.Error(t, err)

	var dup *DuplicateImportError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "swapchain", dup.Name)
}

func TestAliasValidation(t *testing.T) {
	g := NewGraph()

	img := g.DeclareImage("a", testImageDesc())
	buf := g.DeclareBuffer("b", testBufferDesc())
	imported, err := g.ImportImage("ext", vk.NullImage, testImageDesc(), ImageState{})
	require.NoError(t, err)

	assert.Error(t, g.Alias(img, buf), "kind mismatch must be rejected")
	assert.Error(t, g.Alias(img, imported), "imported resources must be rejected")

	img2 := g.DeclareImage("a2", testImageDesc())
	assert.NoError(t, g.Alias(img, img2))
}

func TestResetInvalidatesIDs(t *testing.T) {
	g := NewGraph()
	img := g.DeclareImage("color", testImageDesc())

	g.Reset()

	assert.Equal(t, 0, g.NumResources())
	assert.Equal(t, "", g.ResourceName(img))

	// A fresh declaration after Reset gets a usable id even though it lands
	// on the same index.
	img2 := g.DeclareImage("color", testImageDesc())
	assert.Equal(t, "color", g.ResourceName(img2))
	assert.Equal(t, "", g.ResourceName(img))
}
