package orchestrator

// ResponseChannel is the HTTP response sink of one request
type ResponseChannel interface {
	// Disconnected reports whether the peer went away
	Disconnected() bool
	WriteResponse(status int, contentType string, body []byte)
	Finish()
}

// responder enforces a single write and a single finish on a ResponseChannel,
// and suppresses both once the peer disconnected. Not safe for concurrent use.
type responder struct {
	ch       ResponseChannel
	written  bool
	finished bool
}

func (r *responder) write(status int, contentType string, body []byte) bool {
	if r.written || r.finished || r.ch.Disconnected() {
		return false
	}
	r.written = true
	r.ch.WriteResponse(status, contentType, body)
	return true
}

func (r *responder) finish() bool {
	if r.finished {
		return false
	}
	r.finished = true
	if r.ch.Disconnected() {
		return false
	}
	r.ch.Finish()
	return true
}
