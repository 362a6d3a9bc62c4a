// Package engine binds the relay core to the transport contracts. Engine
// implements transport.ChatHandler on the planner, and
// transport.CapabilityService and transport.TaskReader on the capability
// registry and dispatch engine, translating between core types and the
// wire types of pkg/api.
package engine
