/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package correlation matches replies coming from agents to the requests that are waiting for them.
//
// Every in-flight request is represented by an Entry registered in a Table under its identifier.
// The dispatcher of the request blocks in Entry.Wait, while the inbound path calls Table.Update
// with whatever the agent sent back (an acknowledgment or the final response).
//
// Lock model: the table mutex is held only while the entry is looked up, inserted or deleted.
// The entry's payload is changed under the entry mutex after the table mutex has been released,
// so the two locks are never held together and a slow waiter can't stall unrelated table operations.
package correlation
