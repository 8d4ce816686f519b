package vulcany

import (
	"testing"
)

func TestAlign(t *testing.T) {
	if makeAlignUp(12, 3) != 12 {
		t.Fail()
	}

	if makeAlignUp(10, 3) != 12 {
		t.Fail()
	}

}

func TestAllocator(t *testing.T) {

	a := LinearAllocator{Size: 1024}

	ra := a.Allocate(2048, 1)
	if ra != nil {
		t.Error("oversized allocation should fail")
	}

	ra = a.Allocate(512, 1)
	fa := ra
	if ra == nil {
		t.Error("first allocation should succeed")
	}

	ra = a.Allocate(768, 1)
	if ra != nil {
		t.Error("allocation past capacity should fail")
	}

	ra = a.Allocate(500, 1)
	k := ra
	if ra == nil {
		t.Error("tail allocation should succeed")
	}

	ra = a.Allocate(50, 1)
	if ra != nil {
		t.Error("allocation with 12 bytes left should fail")
	}

	ra = a.Allocate(5, 1)
	if ra == nil {
		t.Error("small tail allocation should succeed")
	}

	a.Free(k)
	ra = a.Allocate(500, 1)
	if ra == nil {
		t.Error("reallocating a freed range should succeed")
	}

	a.Free(fa)
	ra = a.Allocate(20, 1)
	if ra == nil {
		t.Error("head gap allocation should succeed")
	}

	ra = a.Allocate(40, 1)
	if ra == nil {
		t.Error("second head gap allocation should succeed")
	}
}

func TestAllocatorAlignment(t *testing.T) {
	a := LinearAllocator{Size: 1024}

	first := a.Allocate(10, 1)
	if first == nil {
		t.Fatal("allocation failed")
	}

	second := a.Allocate(10, 256)
	if second == nil {
		t.Fatal("aligned allocation failed")
	}
	if second.Offset%256 != 0 {
		t.Errorf("offset %d not aligned to 256", second.Offset)
	}
}

func TestAllocatorFreeAll(t *testing.T) {
	a := LinearAllocator{Size: 64}

	if a.Allocate(64, 1) == nil {
		t.Fatal("allocation failed")
	}
	if a.Allocate(1, 1) != nil {
		t.Fatal("full block should reject allocation")
	}

	a.FreeAll()

	if a.Allocate(64, 1) == nil {
		t.Error("block should be empty after FreeAll")
	}
}
