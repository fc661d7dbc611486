package auth

import "sync"

// FlowState is a step of the login state machine.
type FlowState string

const (
	StateInitializing    FlowState = "Initializing"
	StateBrowserOpening  FlowState = "BrowserOpening"
	StateWaitingForUser  FlowState = "WaitingForUser"
	StateProcessingToken FlowState = "ProcessingToken"
	StateSuccess         FlowState = "Success"
	StateError           FlowState = "Error"
)

// StatusError describes why a login ended in StateError.
type StatusError struct {
	Code        string
	Description string
}

// FlowStatus is emitted on every state transition.
type FlowStatus struct {
	State   FlowState
	Message string
	// AuthURL is set only for StateWaitingForUser so the UI can offer it as a
	// manual fallback when the browser did not open.
	AuthURL string
	Error   *StatusError
}

// StatusObserver receives login progress. Implementations must not block.
type StatusObserver interface {
	OnStatus(status FlowStatus)
}

// StatusFunc adapts a function to StatusObserver.
type StatusFunc func(FlowStatus)

func (f StatusFunc) OnStatus(status FlowStatus) { f(status) }

type noopObserver struct{}

func (noopObserver) OnStatus(FlowStatus) {}

// ChannelObserver delivers statuses on a bounded channel. When the buffer is
// full the event is dropped rather than stalling the login.
type ChannelObserver struct {
	ch     chan FlowStatus
	mu     sync.Mutex
	closed bool
}

// NewChannelObserver creates an observer buffering up to size events.
func NewChannelObserver(size int) *ChannelObserver {
	if size < 1 {
		size = 1
	}
	return &ChannelObserver{ch: make(chan FlowStatus, size)}
}

// C returns the channel to consume statuses from.
func (o *ChannelObserver) C() <-chan FlowStatus { return o.ch }

func (o *ChannelObserver) OnStatus(status FlowStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- status:
	default:
	}
}

// Close closes the channel. Later statuses are discarded.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
