package booking

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine failures.
type Kind string

const (
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindStorageFailure Kind = "STORAGE_FAILURE"
)

// Reason is the machine-readable cause of a Conflict.
type Reason string

const (
	ReasonAlreadyReserved Reason = "ALREADY_RESERVED"
	ReasonResourceFull    Reason = "RESOURCE_FULL"
	ReasonCategoryTaken   Reason = "CATEGORY_TAKEN"
	ReasonAlreadyPaired   Reason = "ALREADY_PAIRED"
)

// Entity names what a NotFound refers to.
type Entity string

const (
	EntityParticipant Entity = "participant"
	EntityTable       Entity = "table"
	EntityReservation Entity = "reservation"
)

// Sentinels for errors.Is; every *Error matches exactly one of them.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrStorageFailure = errors.New("storage failure")
)

// Error is returned by every engine operation that does not succeed.
type Error struct {
	Kind    Kind
	Reason  Reason // set for KindConflict
	Entity  Entity // set for KindNotFound
	Message string // human readable, safe to show to users
	Err     error  // underlying cause for KindStorageFailure
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the Kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrStorageFailure:
		return e.Kind == KindStorageFailure
	}
	return false
}

// Code is the stable code surfaced to API clients.
func (e *Error) Code() string {
	switch e.Kind {
	case KindNotFound:
		if e.Entity != "" {
			return strings.ToUpper(string(e.Entity)) + "_NOT_FOUND"
		}
		return string(KindNotFound)
	case KindConflict:
		if e.Reason != "" {
			return string(e.Reason)
		}
		return string(KindConflict)
	default:
		return string(e.Kind)
	}
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func notFound(entity Entity, id string) *Error {
	msg := fmt.Sprintf("%s not found", strings.ToUpper(string(entity[:1]))+string(entity[1:]))
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", strings.ToUpper(string(entity[:1]))+string(entity[1:]), id)
	}
	return &Error{Kind: KindNotFound, Entity: entity, Message: msg}
}

func conflict(reason Reason, message string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: message}
}

func storageFailure(err error) *Error {
	return &Error{Kind: KindStorageFailure, Message: "The booking could not be saved, please try again", Err: err}
}
