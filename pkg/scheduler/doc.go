// Package scheduler answers one narrow question for the deployer: is
// there a ready, unallocated node of the right type to place a
// replacement allocation on. It does not place anything itself — that
// is the redeployment algorithm the core's non-goals exclude — it only
// gates whether the deployer should promise a deployment handle at all.
package scheduler
