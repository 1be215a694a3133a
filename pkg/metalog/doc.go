// Package metalog is a minimal stand-in for the storage engine's
// persistent metadata log and routing-map snapshot store: external
// collaborators the scheduler itself never talks to. The scheduler
// never imports this package; only pkg/cn's route map does, through
// the cn.RouteStore interface, since persistence is a collaborator of
// the tree rather than of the scheduler.
package metalog
