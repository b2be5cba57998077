package slave

// InterruptController owns the event and error interrupt lines of the peripheral.
type InterruptController interface {
	// Attach installs the handlers and unmasks both lines.
	Attach(event, fault func())
	// Detach masks both lines and drops the handlers.
	Detach()
	// Disable masks both lines. Calls are not nested.
	Disable()
	// Enable unmasks both lines.
	Enable()
	// InInterrupt reports whether the caller runs in interrupt context.
	InInterrupt() bool
}

// wakeSlot holds at most one waiter. Registering replaces the previous waiter.
type wakeSlot struct {
	ch chan struct{}
}

func (w *wakeSlot) register() <-chan struct{} {
	ch := make(chan struct{}, 1)
	w.ch = ch
	return ch
}

// wake signals the registered waiter, if any, and empties the slot. It never blocks.
func (w *wakeSlot) wake() {
	if w.ch == nil {
		return
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
	w.ch = nil
}

func (w *wakeSlot) clear() {
	w.ch = nil
}
