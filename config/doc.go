// Package config implements the configuration applier: a reconciler
// that diffs a desired declarative DesiredState against the engine's
// live topology and performs the minimal set of creates, updates, and
// removals against a Runtime the engine implements. It also resolves
// two-phase pending-tag attach: a path whose source tag selector
// matches no tag yet seen is held pending until the timeshift
// manager's first-seen notification arrives for a matching tag.
package config
