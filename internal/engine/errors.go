package engine

import "errors"

// ErrBusy is returned by Submit when a stream is already active (submit
// protocol step 2; I1 — single writer, single active session).
var ErrBusy = errors.New("engine: a stream is already active")

// ErrModelUnknown is returned when a chat's model_id cannot be resolved to
// a known, available provider and the Registry holds at least one
// credential (submit protocol step 7's "raise EngineError::ModelUnavailable"
// branch).
var ErrModelUnknown = errors.New("engine: model is not bound to an available provider")

// ErrChatRequired reports that a command needed a previously selected or
// created chat. No Engine method in this package returns it.
var ErrChatRequired = errors.New("engine: no chat selected")
