package status

import "sync"

// SignalingStatus is the last known state of the signaling connection.
type SignalingStatus struct {
	State     string `json:"state"`
	Simulated bool   `json:"simulated"`
}

// SignalingStatusChangeCallback is called when the signaling status changes
type SignalingStatusChangeCallback func(status SignalingStatus)

var (
	mu                 sync.RWMutex
	signaling          = SignalingStatus{State: "closed"}
	signalingCallbacks []SignalingStatusChangeCallback
)

// SetSignalingState sets the signaling connection status
func SetSignalingState(state string, simulated bool) {
	mu.Lock()
	previous := signaling
	signaling = SignalingStatus{State: state, Simulated: simulated}
	current := signaling
	callbacks := make([]SignalingStatusChangeCallback, len(signalingCallbacks))
	copy(callbacks, signalingCallbacks)
	mu.Unlock()

	// 状態が変わったときだけ通知
	if previous == current {
		return
	}
	for _, callback := range callbacks {
		if callback != nil {
			callback(current)
		}
	}
}

// Signaling returns the signaling connection status
func Signaling() SignalingStatus {
	mu.RLock()
	defer mu.RUnlock()
	return signaling
}

// IsSignalingOpen reports whether a live signaling connection is open.
func IsSignalingOpen() bool {
	s := Signaling()
	return s.State == "open" && !s.Simulated
}

// RegisterSignalingStatusChangeCallback registers a callback for signaling status changes
func RegisterSignalingStatusChangeCallback(callback SignalingStatusChangeCallback) {
	mu.Lock()
	defer mu.Unlock()
	signalingCallbacks = append(signalingCallbacks, callback)
}

// ResetForTest clears the status and registered callbacks.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	signaling = SignalingStatus{State: "closed"}
	signalingCallbacks = nil
}
