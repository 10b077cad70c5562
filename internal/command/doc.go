// Package command implements the host command bus.
//
// The bus maps command ids to handlers. Any extension may register commands;
// the host core and any extension holding the bus may execute them. Every
// registration carries the id of its owner (an extension context) so that
// all of an owner's commands can be removed in one call when the owner is
// torn down.
//
// Collision policy: ids are unique. A second Register for a live id fails
// with ErrAlreadyRegistered and leaves the first registration in place.
//
// Executing an unknown id fails with ErrCommandNotFound; it never silently
// succeeds.
package command
