package indicator

// Multi combines multiple Indicator implementations.
type Multi struct {
	indicators []Indicator
}

// Idle implements Indicator.Idle.
func (m *Multi) Idle() {
	for _, ind := range m.indicators {
		ind.Idle()
	}
}

// Scanning implements Indicator.Scanning.
func (m *Multi) Scanning() {
	for _, ind := range m.indicators {
		ind.Scanning()
	}
}

// Found implements Indicator.Found.
func (m *Multi) Found() {
	for _, ind := range m.indicators {
		ind.Found()
	}
}

// Denied implements Indicator.Denied.
func (m *Multi) Denied() {
	for _, ind := range m.indicators {
		ind.Denied()
	}
}

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() {
	for _, ind := range m.indicators {
		ind.Shutdown()
	}
}

// Release implements Indicator.Release.
func (m *Multi) Release() error {
	var lastErr error
	for _, ind := range m.indicators {
		if err := ind.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
