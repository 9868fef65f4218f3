package swim

import (
	"errors"
	"fmt"
)

// ErrSuspect is returned when a state mutation to Suspect is attempted on a
// Node which is not currently Alive.
var ErrSuspect = errors.New("swim: cannot suspect a node which is not alive")

// ErrKill is returned when a state mutation to Dead is attempted on a Node
// which is neither Alive nor Suspect.
var ErrKill = errors.New("swim: cannot kill a node which is not alive or suspect")

// ErrLeave is returned when a Node which has already left attempts to leave
// again.
var ErrLeave = errors.New("swim: cannot leave more than once")

// AlreadyPingedError is returned by PingStore.Ping when the given address
// already has a direct or indirect probe in flight. It is expected in
// steady state and simply skips the round for that address (spec §7).
type AlreadyPingedError struct {
	Addr Addr
}

func (e *AlreadyPingedError) Error() string {
	return fmt.Sprintf("swim: node %q currently has a ping in flight", e.Addr)
}
