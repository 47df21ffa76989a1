// Package events is an in-memory pub/sub broker used by pkg/manager to
// broadcast node-state changes (fail, park, dirty, reactivate) to any
// in-process subscriber, such as an operator-facing event tail, without
// coupling the manager to a specific consumer.
package events
