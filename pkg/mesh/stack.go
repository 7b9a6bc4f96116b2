package mesh

// Stack is the working storage for tree traversal: a LIFO of node indices
// plus a scratch set used to de-duplicate vertices.
//
// A Stack is reused across queries to avoid allocating on every call. It is
// not safe for concurrent use; give each goroutine its own Stack, or let
// Mesh draw one from its pool.
type Stack struct {
	nodes []int32

	seen    []bool
	touched []uint32
}

// NewStack returns a stack with room for capacity nodes before growing.
func NewStack(capacity int) *Stack {
	if capacity < 16 {
		capacity = 16
	}
	return &Stack{nodes: make([]int32, 0, capacity)}
}

func (s *Stack) push(n int32) {
	s.nodes = append(s.nodes, n)
}

func (s *Stack) pop() (int32, bool) {
	last := len(s.nodes) - 1
	if last < 0 {
		return 0, false
	}
	n := s.nodes[last]
	s.nodes = s.nodes[:last]
	return n, true
}

// reset clears any state left by a query that returned early.
func (s *Stack) reset() {
	s.nodes = s.nodes[:0]
	for _, id := range s.touched {
		s.seen[id] = false
	}
	s.touched = s.touched[:0]
}

// markVertex records id and reports whether it was seen for the first time
// since the last reset.
func (s *Stack) markVertex(id uint32, vertexCount int) bool {
	if int(id) >= len(s.seen) {
		size := max(vertexCount, int(id)+1)
		s.seen = append(s.seen, make([]bool, size-len(s.seen))...)
	}
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	s.touched = append(s.touched, id)
	return true
}
