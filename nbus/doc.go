// Package nbus is an in-process event bus.  Listeners are registered
// by the event type they receive; an interface type receives every
// event that implements it.  Handlers ask for a *Bus parameter to
// publish events during a request.
package nbus
