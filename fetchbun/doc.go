// Package fetchbun adapts bun-backed storage into batch fetch functions.
//
// A batch loader hands its coalesced key set to a FetchFunc; the adapters
// here turn that key set into a single IN query against a bun.IDB or a
// go-repository-bun repository and realign the rows to the requested key
// order, with nil slots for keys the database did not return.
package fetchbun
