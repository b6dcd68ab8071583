package torch

// Noop implements Light but does nothing.
// Used when no torch is fitted.
type Noop struct{}

// Set implements camera.Light.Set.
func (n *Noop) Set(on bool) error {
	return nil
}

// Release implements Light.Release.
func (n *Noop) Release() error {
	return nil
}
