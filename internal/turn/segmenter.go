// Package turn decides when the caller has finished speaking and guards the
// conversational engine against overlapping response requests.
//
// The [Segmenter] is a pure state machine. It never touches the network or a
// timer; the owning session feeds it audio byte counts, silence expiries and
// engine events, and executes the actions it returns. All methods must be
// called from a single goroutine.
//
// Caller audio is tracked as byte offsets in the call's cumulative inbound
// stream. A caller turn is materialised only once at least MinTurnBytes have
// accumulated since the previous turn; shorter bursts stay pending and are
// folded into the next turn, so every caller turn's span is contiguous with
// and disjoint from its neighbours.
package turn

import "fmt"

// State is the segmenter's position in the turn cycle.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateCommitting
	StateAwaitingResponse
	StateAgentSpeaking
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateCommitting:
		return "committing"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateAgentSpeaking:
		return "agent_speaking"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Span is a half-open byte range [Start, End) of caller audio.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes in the span.
func (s Span) Len() int { return s.End - s.Start }

// Commit is a proposed caller turn returned by [Segmenter.SilenceElapsed].
type Commit struct {
	Ordinal int
	Span    Span

	// Respond is true when the single-flight slot was taken for this commit
	// and a response request must be sent with it. When false a response is
	// already in flight and the request is deferred until it completes.
	Respond bool
}

// Segmenter tracks turn boundaries for one call.
type Segmenter struct {
	minTurnBytes int

	state        State
	total        int
	pendingStart int
	nextOrdinal  int

	inFlight  bool
	deferred  bool
	agentOpen bool
	agentOrd  int

	proposal *Commit
}

// New returns a Segmenter that materialises caller turns of at least
// minTurnBytes bytes.
func New(minTurnBytes int) *Segmenter {
	return &Segmenter{minTurnBytes: max(minTurnBytes, 1)}
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Total returns the cumulative number of caller bytes observed.
func (s *Segmenter) Total() int { return s.total }

// Pending returns the caller bytes not yet attributed to a turn.
func (s *Segmenter) Pending() int { return s.total - s.pendingStart }

// InFlight reports whether a response request is outstanding.
func (s *Segmenter) InFlight() bool { return s.inFlight }

// AgentOpen reports whether an agent turn is accumulating text, and its
// ordinal.
func (s *Segmenter) AgentOpen() (int, bool) { return s.agentOrd, s.agentOpen }

// Audio records n inbound bytes. It returns false after Close, in which case
// the frame must be dropped; otherwise the caller resets its silence timer.
func (s *Segmenter) Audio(n int) bool {
	if s.state == StateClosed {
		return false
	}
	s.total += max(n, 0)
	if s.state == StateIdle && s.Pending() > 0 {
		s.state = StateAccumulating
	}
	return true
}

// SilenceElapsed is called when the debounce interval passes with no new
// audio. It proposes a caller turn when enough audio is pending; the caller
// must follow up with Committed or Aborted. Bursts below the minimum return
// false and stay pending.
func (s *Segmenter) SilenceElapsed() (Commit, bool) {
	if s.state == StateClosed || s.proposal != nil {
		return Commit{}, false
	}
	if s.Pending() < s.minTurnBytes {
		return Commit{}, false
	}

	c := Commit{
		Ordinal: s.nextOrdinal,
		Span:    Span{Start: s.pendingStart, End: s.total},
		Respond: !s.inFlight,
	}
	if c.Respond {
		s.inFlight = true
	}
	s.proposal = &c
	s.state = StateCommitting
	return c, true
}

// Committed confirms the outstanding proposal after the engine accepted the
// commit (and response request, if any). The caller turn is now part of the
// call.
func (s *Segmenter) Committed() (Commit, bool) {
	if s.proposal == nil {
		return Commit{}, false
	}
	c := *s.proposal
	s.proposal = nil
	s.pendingStart = c.Span.End
	s.nextOrdinal++

	switch {
	case c.Respond:
		s.state = StateAwaitingResponse
	case s.agentOpen:
		s.deferred = true
		s.state = StateAgentSpeaking
	default:
		s.deferred = true
		s.state = StateAwaitingResponse
	}
	return c, true
}

// Aborted rolls back the outstanding proposal after sending failed. No turn
// is materialised, the audio stays pending for the next cycle and the
// single-flight slot is released if the proposal had taken it.
func (s *Segmenter) Aborted() {
	if s.proposal == nil {
		return
	}
	if s.proposal.Respond {
		s.inFlight = false
	}
	s.proposal = nil
	if s.state != StateClosed {
		s.state = s.restingState()
	}
}

// Acquire takes the single-flight slot for a response request that is not
// tied to a caller turn (the opening line). It returns false if a response is
// already outstanding.
func (s *Segmenter) Acquire() bool {
	if s.state == StateClosed || s.inFlight {
		return false
	}
	s.inFlight = true
	s.state = StateAwaitingResponse
	return true
}

// Release frees the single-flight slot after a response request could not be
// sent.
func (s *Segmenter) Release() {
	s.inFlight = false
	if s.state == StateAwaitingResponse {
		s.state = s.restingState()
	}
}

// ResponseStarted opens an agent turn for a response the engine began. prev
// is the ordinal of an agent turn that was still open and must be
// force-closed before text for the new one is accepted; hadPrev reports
// whether there was one.
func (s *Segmenter) ResponseStarted() (ordinal, prev int, hadPrev bool) {
	if s.state == StateClosed {
		return 0, 0, false
	}
	prev, hadPrev = s.agentOrd, s.agentOpen
	s.inFlight = true
	s.agentOpen = true
	s.agentOrd = s.nextOrdinal
	s.nextOrdinal++
	if s.proposal == nil {
		s.state = StateAgentSpeaking
	}
	return s.agentOrd, prev, hadPrev
}

// ResponseDone handles a terminal engine event (completed or error). It
// closes the open agent turn and releases the single-flight slot. When a
// caller turn was committed while the response ran, respond is true and the
// slot is immediately taken again for the deferred request.
func (s *Segmenter) ResponseDone() (closed int, hadOpen, respond bool) {
	if s.state == StateClosed {
		return 0, false, false
	}
	closed, hadOpen = s.agentOrd, s.agentOpen
	s.agentOpen = false
	s.inFlight = false

	if s.deferred && s.proposal == nil {
		s.deferred = false
		s.inFlight = true
		s.state = StateAwaitingResponse
		return closed, hadOpen, true
	}
	if s.proposal == nil {
		s.state = s.restingState()
	}
	return closed, hadOpen, false
}

// Final describes what Finalize flushed at end of call.
type Final struct {
	// Caller is the trailing caller turn, valid when HasCaller is set.
	Caller    Commit
	HasCaller bool

	// Agent is the ordinal of the agent turn that was still open, valid when
	// HasAgent is set.
	Agent    int
	HasAgent bool
}

// Finalize ends the call. Any pending caller audio becomes a last caller turn
// regardless of the minimum, since no later turn exists to fold it into. The
// open agent turn, if any, is reported for force-closing. The segmenter is
// closed afterwards; a second call returns the zero Final.
func (s *Segmenter) Finalize() Final {
	if s.state == StateClosed {
		return Final{}
	}
	var f Final
	s.proposal = nil
	if s.Pending() > 0 {
		f.Caller = Commit{
			Ordinal: s.nextOrdinal,
			Span:    Span{Start: s.pendingStart, End: s.total},
		}
		f.HasCaller = true
		s.pendingStart = s.total
		s.nextOrdinal++
	}
	if s.agentOpen {
		f.Agent, f.HasAgent = s.agentOrd, true
	}
	s.Close()
	return f
}

// Close moves the segmenter to StateClosed. Every later call is a no-op.
func (s *Segmenter) Close() {
	s.state = StateClosed
	s.inFlight = false
	s.deferred = false
	s.agentOpen = false
	s.proposal = nil
}

func (s *Segmenter) restingState() State {
	switch {
	case s.agentOpen:
		return StateAgentSpeaking
	case s.inFlight:
		return StateAwaitingResponse
	case s.Pending() > 0:
		return StateAccumulating
	default:
		return StateIdle
	}
}
