package llrp

import "sync"

// This file implements C6, the continuation registry. It is Go's
// equivalent of sllurp's Deferred-per-outstanding-request pattern: each
// LLRP request expects exactly one response of a known name, and callers
// want to be resumed (success or failure) when that response lands, in the
// order their requests were sent (llrp.py's self.disconnecting/send_* wiring
// chains a Deferred's callback/errback per pending request name).

// continuation pairs the two callbacks a pending request is waiting on.
type continuation struct {
	onSuccess func(*Message)
	onFailure func(error)
}

// continuationRegistry holds, per expected response name, a FIFO queue of
// pending continuations. Multiple requests awaiting the same response name
// may be in flight at once (e.g. back-to-back DELETE_ACCESSSPEC calls), so
// fire() always resolves the oldest one first.
type continuationRegistry struct {
	mu      sync.Mutex
	pending map[MessageName][]continuation
}

func newContinuationRegistry() *continuationRegistry {
	return &continuationRegistry{pending: make(map[MessageName][]continuation)}
}

// add registers a continuation awaiting the given response name.
func (r *continuationRegistry) add(name MessageName, onSuccess func(*Message), onFailure func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[name] = append(r.pending[name], continuation{onSuccess: onSuccess, onFailure: onFailure})
}

// fire resolves the oldest continuation registered for msg.Name, if any,
// using msg.IsSuccess() to pick which callback runs. It reports whether a
// continuation was found. Callbacks run outside the lock so they may
// themselves call back into the registry (e.g. chaining a follow-up send).
func (r *continuationRegistry) fire(msg *Message) bool {
	r.mu.Lock()
	queue := r.pending[msg.Name]
	if len(queue) == 0 {
		r.mu.Unlock()
		return false
	}
	next := queue[0]
	r.pending[msg.Name] = queue[1:]
	r.mu.Unlock()

	if msg.IsSuccess() {
		if next.onSuccess != nil {
			next.onSuccess(msg)
		}
	} else {
		if next.onFailure != nil {
			code, desc, _ := msg.StatusOf()
			next.onFailure(&ProtocolStateError{
				Message:          msg.Name,
				StatusCode:       code,
				ErrorDescription: desc,
				Fatal:            isFatalResponse(msg.Name),
			})
		}
	}
	return true
}

// failAll fails every pending continuation with err, e.g. on disconnect.
// Used so no caller is left waiting forever on a reset connection.
func (r *continuationRegistry) failAll(err error) {
	r.mu.Lock()
	all := r.pending
	r.pending = make(map[MessageName][]continuation)
	r.mu.Unlock()

	for _, queue := range all {
		for _, c := range queue {
			if c.onFailure != nil {
				c.onFailure(err)
			}
		}
	}
}
