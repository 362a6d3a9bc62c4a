// Package storage holds helpers shared by the task store backends
// (memory, postgres): sentinel errors and tenant context propagation.
//
// The Store contract itself lives in pkg/task.
package storage
