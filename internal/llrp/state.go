package llrp

// State is the per-connection protocol state, per spec.md §4.5. Values are
// stable identifiers, matching the original LLRPProtocol.STATE_* constants
// so log lines and the numbering in spec.md's transition table agree.
type State int

const (
	StateDisconnected State = iota + 1
	StateConnecting
	StateConnected
	StateSentAddROSpec
	StateSentEnableROSpec
	StateInventorying
	StateSentDeleteROSpec
	StateSentDeleteAccessSpec
	StateSentGetCapabilities
	StatePausing
	StatePaused
)

var stateNames = map[State]string{
	StateDisconnected:         "DISCONNECTED",
	StateConnecting:           "CONNECTING",
	StateConnected:            "CONNECTED",
	StateSentAddROSpec:        "SENT_ADD_ROSPEC",
	StateSentEnableROSpec:     "SENT_ENABLE_ROSPEC",
	StateInventorying:         "INVENTORYING",
	StateSentDeleteROSpec:     "SENT_DELETE_ROSPEC",
	StateSentDeleteAccessSpec: "SENT_DELETE_ACCESSSPEC",
	StateSentGetCapabilities:  "SENT_GET_CAPABILITIES",
	StatePausing:              "PAUSING",
	StatePaused:               "PAUSED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}
