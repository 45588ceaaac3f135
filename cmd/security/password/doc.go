// Package password is the client-side password policy applied before a
// registration request leaves the machine.
//
// The backend remains the authority; this only rejects passwords it would
// certainly refuse, so the user gets the error without a round trip.
package password
