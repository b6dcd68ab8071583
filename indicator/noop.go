package indicator

// Noop implements Indicator but does nothing.
// Used when no indicators are configured.
type Noop struct{}

func (n *Noop) Idle()          {}
func (n *Noop) Scanning()      {}
func (n *Noop) Found()         {}
func (n *Noop) Denied()        {}
func (n *Noop) Shutdown()      {}
func (n *Noop) Release() error { return nil }
