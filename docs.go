/*
Package vulcany implements a render graph atop the Vulkan graphics framework for go. Vulkan is a
very powerful graphics and compute framework which leaves synchronization entirely up to the
implementing application - every image layout transition, memory barrier and queue ownership
transfer must be placed by hand, and misplacing one produces bugs which are notoriously difficult
to track down.

This package takes a different approach: the application declares what it wants to do, and the
graph derives the synchronization. Work is described as a set of passes, each naming the logical
resources it reads and writes and on what kind of queue it runs. From those declarations alone the
graph computes the dependencies between passes, derives every barrier and ownership transfer the
declared accesses require, orders the passes deterministically and hands back a compiled plan
ready to execute.

Overview

A frame (or a one off compute job) is one cycle of a Graph. The application declares logical
resources, either transient (the graph creates and owns their backing, and may alias storage
between resources whose lifetimes do not overlap) or imported (the application owns the backing,
a swapchain image being the typical case, and tells the graph what state the resource enters the
cycle in). Passes then declare their accesses against those resources:

	g := vulcany.NewGraph()
	img := g.DeclareImage("target", vulcany.ImageDesc{...})
	g.AddPass(vulcany.Pass{
		Name:   "draw",
		Queue:  vulcany.QueueGraphics,
		Accesses: []vulcany.Access{vulcany.ColorWrite(img)},
		Record: func(ctx *vulcany.PassContext) error {
			h, err := ctx.WriteImage(img)
			...
		},
	})
	plan, err := g.Compile()

Compile validates the declarations, derives the sync points, assigns aliased storage slots and
produces an ExecutionPlan. An Executor then walks the plan, invoking each pass's record callback
with a PassContext scoped to exactly the accesses that pass declared. Resources are only reachable
through capability typed handles, so a pass that declared a read cannot accidentally write, and a
handle kept beyond the callback panics rather than corrupt a later cycle.

The derived synchronization is conservative but complete: if the declarations are accurate, the
recorded command stream needs no further barriers. Two passes with no dependency between them may
record in parallel, which the executor exploits when given workers.

About this package

The lower level objects in this package (Instance, Device, Queue, Buffer, Image and friends) wrap
the native Vulkan APIs the same way throughout: the wrapped native handle is always exposed in a
field or method prefixed with 'VK', so applications aren't limited by what this package provides.
The graph layer sits on top and goes beyond what Vulkan natively provides:

Graph:
	declarative passes and resources, compiled into a deterministic ExecutionPlan
Executor and DeviceRecorder:
	plan execution, command buffer management and cross queue submission ordering
BackingPool:
	transient resource backing with storage aliasing, carved from one memory block

*/
package vulcany
