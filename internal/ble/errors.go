package ble

import "errors"

// Recoverable error kinds. Callers match them with errors.Is; every one of
// them leaves the owning session in Idle or a well-defined bound state.
var (
	ErrNotConnected       = errors.New("ble: not connected")
	ErrCapability         = errors.New("ble: characteristic does not support operation")
	ErrPeerNotFound       = errors.New("ble: peer not found")
	ErrServiceNotFound    = errors.New("ble: service not found")
	ErrResourceExhausted  = errors.New("ble: scan buffer exhausted")
	ErrAlreadyAdvertising = errors.New("ble: already advertising")
	ErrNotAdvertising     = errors.New("ble: not advertising")
	ErrRoleMismatch       = errors.New("ble: operation not valid in current role")
	ErrBluetooth          = errors.New("ble: bluetooth error")
	ErrConnection         = errors.New("ble: connection error")
	ErrPayloadTooLarge    = errors.New("ble: payload exceeds buffer size")
	ErrInvalidState       = errors.New("ble: operation not valid in current state")
)
