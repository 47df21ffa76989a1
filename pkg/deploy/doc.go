// Package deploy implements the deployer collaborator the cascaded
// fail-active protocol (pkg/failer) drives. DeployFromLocalActive hands
// out a single-use Handle once a CapacityChecker confirms room for a
// replacement allocation; Handle.Activate runs the Activator behind a
// gobreaker circuit breaker so a stuck redeployment algorithm fails fast
// instead of burning a full tick's timeout budget. The redeployment
// algorithm itself — how a replacement allocation is actually chosen and
// placed — is the surrounding system's concern, not this core's.
package deploy
