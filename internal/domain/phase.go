package domain

// RoomState represents where a room is in its lifecycle
type RoomState string

const (
	StateLobby      RoomState = "LOBBY"      // Waiting for players to join
	StateActive     RoomState = "ACTIVE"     // Cards dealt, rounds can be declared
	StateTerminated RoomState = "TERMINATED" // Everyone gone, resources released
)

// String returns the string representation of the state
func (s RoomState) String() string {
	return string(s)
}

// CanTransitionTo checks if a transition from current state to target state is valid
func (s RoomState) CanTransitionTo(target RoomState) bool {
	validTransitions := map[RoomState][]RoomState{
		StateLobby:  {StateActive, StateTerminated},
		StateActive: {StateTerminated},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == target {
			return true
		}
	}
	return false
}
