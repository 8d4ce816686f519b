package vulcany

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// SyncPoint is one derived synchronization instruction, issued immediately
// before the consuming pass. On a single queue it is a pipeline barrier; when
// SrcQueue and DstQueue differ it stands for a release/acquire ownership
// transfer pair, recorded once on each of the two queues.
type SyncPoint struct {
	Resource     ResourceID
	ResourceName string

	// SrcPass is the producing pass index, or -1 when the barrier brings a
	// resource in from its cycle-entry state.
	SrcPass int
	DstPass int

	SrcStages vk.PipelineStageFlags
	DstStages vk.PipelineStageFlags
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags

	// Image layout transition. Both fields are zero for buffers.
	OldLayout vk.ImageLayout
	NewLayout vk.ImageLayout

	SrcQueue QueueType
	DstQueue QueueType
}

// IsQueueTransfer reports whether this SyncPoint crosses queue types and so
// must be recorded as a release/acquire pair.
func (s *SyncPoint) IsQueueTransfer() bool {
	return s.SrcQueue != s.DstQueue
}

// IsEntry reports whether this SyncPoint transitions a resource from its
// cycle-entry state rather than from a producing pass.
func (s *SyncPoint) IsEntry() bool {
	return s.SrcPass < 0
}

func (s *SyncPoint) String() string {
	kind := "barrier"
	if s.IsQueueTransfer() {
		kind = fmt.Sprintf("transfer %s->%s", s.SrcQueue, s.DstQueue)
	}
	src := "entry"
	if !s.IsEntry() {
		src = fmt.Sprintf("pass %d", s.SrcPass)
	}
	return fmt.Sprintf("%s %s: %s -> pass %d stages %x->%x access %x->%x layout %d->%d",
		kind, s.ResourceName, src, s.DstPass,
		s.SrcStages, s.DstStages, s.SrcAccess, s.DstAccess, s.OldLayout, s.NewLayout)
}
