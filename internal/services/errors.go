// Package services implements the business logic of the conversation engine:
// the per-user session state machine, escalation decisions, ticket lifecycle,
// and counsellor roster management. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when an inbound event carries neither
	// text nor a structured reply id.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoCounsellors is returned when an escalation finds the roster
	// empty. The ticket is still created; only the assignment is skipped.
	ErrNoCounsellors = errors.New("no counsellors on the roster")

	// ErrCounsellorNotFound indicates that the referenced counsellor does
	// not exist on the roster.
	ErrCounsellorNotFound = errors.New("counsellor not found")

	// ErrDuplicateCounsellor is returned when registering a counsellor
	// whose username is already taken, or re-binding an existing channel.
	ErrDuplicateCounsellor = errors.New("counsellor already registered")

	// ErrTicketNotFound indicates that the referenced ticket does not exist.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrInvalidTicketStatus is returned for a status value outside the
	// closed open/in_progress/closed set.
	ErrInvalidTicketStatus = errors.New("invalid ticket status")
)
