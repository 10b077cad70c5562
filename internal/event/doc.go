// Package event is the outbound event stream of the extension host.
//
// The host publishes two families of events on a Bus:
//
//   - lifecycle events ("extension.lifecycle") whenever an extension moves
//     between states
//   - side-effect events produced by capability calls ("window.message",
//     "statusbar.changed", "terminal.sendText", ...)
//
// The UI layer subscribes with topic patterns. Topics are dot separated;
// "*" matches exactly one segment and "**" matches zero or more segments:
//
//	bus.Subscribe("window.*", showInUI)
//	bus.Subscribe("**", auditLog)
//
// Delivery is synchronous, in subscription order. Handler panics are
// recovered and reported to the bus's panic handler so that one faulty
// subscriber cannot break the publisher or other subscribers.
package event
