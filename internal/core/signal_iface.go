package core

// Frame is one encoded outbound signal.
type Frame []byte

// SignalConnection is the outbound half of a participant's transport.
// TrySend must not block; a full queue is reported as an error and the
// room's backpressure policy decides what happens next. Close is idempotent.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
