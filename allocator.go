package pmcheck

// LocalPortAllocator hands out the internal port for each mapping attempt.
// Ports are never reused within a run.
type LocalPortAllocator struct {
	next int
}

// NewLocalPortAllocator starts counting at first.
func NewLocalPortAllocator(first int) *LocalPortAllocator {
	return &LocalPortAllocator{next: first}
}

// Peek returns the port the next attempt will use without consuming it.
func (a *LocalPortAllocator) Peek() int {
	return a.next
}

// Next consumes and returns the next port.
func (a *LocalPortAllocator) Next() int {
	port := a.next
	a.next++
	return port
}
