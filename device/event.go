package device

// Event signals the completion of an operation submitted to a Queue. A nil
// *Event is treated as already completed without error.
type Event struct {
	done chan struct{}
	err  error
}

func newEvent() *Event {
	return &Event{done: make(chan struct{})}
}

func (e *Event) complete(err error) {
	e.err = err
	close(e.done)
}

// Completed returns an event that has already finished with err
func Completed(err error) *Event {
	e := newEvent()
	e.complete(err)
	return e
}

// Await blocks until the event is done, then returns the error, if any
func (e *Event) Await() error {
	if e == nil {
		return nil
	}
	<-e.done
	return e.err
}

// Done is closed when the event completes
func (e *Event) Done() <-chan struct{} {
	if e == nil {
		return closedChan
	}
	return e.done
}

// IsDone reports completion without blocking
func (e *Event) IsDone() bool {
	select {
	case <-e.Done():
		return true
	default:
		return false
	}
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// AwaitAll waits for every event and returns the first error encountered
func AwaitAll(events ...*Event) error {
	var first error
	for _, e := range events {
		if err := e.Await(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
