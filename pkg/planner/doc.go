// Package planner drives a chain of capability invocations for one request.
//
// A run moves through a fixed set of states:
//
//	INIT -> DECIDING -> DIRECT_ANSWER -> DONE
//	                 -> INVOKING -> ASSESSING -> DECIDING | DONE | ABORTED
//
// The oracle picks each capability and judges the results; the planner owns
// the chain, enforces the depth bound and never retries a decision that
// names a capability outside the catalog. Invocations within a chain run
// one at a time.
package planner
