// Package resource limits the memory held by region fields, the number of
// concurrent background jobs, and checkpoint IO bandwidth.
//
// A Controller satisfies space.Accountant, so regions allocated through
// space.NewAccountedRegion are charged against its memory limit.
package resource
