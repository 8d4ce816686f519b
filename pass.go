package vulcany

type QueueType int

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
	numQueueTypes
)

func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	}
	return "unknown"
}

type AccessMode int

const (
	Read AccessMode = iota
	Write
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "readwrite"
	}
	return "unknown"
}

func (m AccessMode) reads() bool {
	return m == Read || m == ReadWrite
}

func (m AccessMode) writes() bool {
	return m == Write || m == ReadWrite
}

// RecordFunc records the actual device commands for one pass. It receives a
// PassContext scoped to exactly the accesses the pass declared; the context
// and every handle obtained from it become invalid once the function returns.
type RecordFunc func(ctx *PassContext) error

// Pass is one unit of device work and the accesses it performs. Passes are
// declared against a Graph with AddPass and never execute directly.
type Pass struct {
	Name     string
	Queue    QueueType
	Accesses []Access
	Record   RecordFunc
}

// PassHandle refers to a pass within the cycle that declared it.
type PassHandle struct {
	index int
	cycle uint64
}

// AddPass appends a pass to the graph. Every referenced resource must have
// been declared or imported in the current cycle, and a resource may appear
// at most once in the declaration. A rejected pass leaves the graph
// untouched.
func (g *Graph) AddPass(p Pass) (PassHandle, error) {
	seen := make(map[int]bool, len(p.Accesses))
	for _, a := range p.Accesses {
		if !g.owns(a.Resource) {
			return PassHandle{}, &UnknownResourceError{Pass: p.Name, Resource: a.Resource}
		}
		if seen[a.Resource.index] {
			return PassHandle{}, &ConflictingAccessError{Pass: p.Name, Resource: g.resources[a.Resource.index].name}
		}
		seen[a.Resource.index] = true
	}

	stored := p
	stored.Accesses = append([]Access(nil), p.Accesses...)
	g.passes = append(g.passes, &stored)
	return PassHandle{index: len(g.passes) - 1, cycle: g.cycle}, nil
}
