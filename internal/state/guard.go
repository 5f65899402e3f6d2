package state

// ReentrancyGuard is a non-reentrant execution flag for one component.
// Enter fails while an entrypoint of the same component is still running.
type ReentrancyGuard struct {
	entered bool
}

// Enter marks the component busy
func (g *ReentrancyGuard) Enter() error {
	if g.entered {
		return ErrReentrantCall
	}
	g.entered = true
	return nil
}

// Exit clears the busy flag
func (g *ReentrancyGuard) Exit() {
	g.entered = false
}

// Entered reports whether an entrypoint is running
func (g *ReentrancyGuard) Entered() bool {
	return g.entered
}
