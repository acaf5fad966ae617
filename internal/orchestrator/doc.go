// Package orchestrator runs one crawl invocation end to end: authenticate the
// trigger, parse the chunk parameters, list the target universe, plan the
// chunk, execute it and, when work remains, hand the next chunk off to a fresh
// invocation.
//
// The controller keeps no state between invocations. Progress through a long
// crawl lives entirely in the chunk index carried by each request.
package orchestrator
