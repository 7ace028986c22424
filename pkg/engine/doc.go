// Package engine provides the hand-off types between the catalog compiler and
// whatever applies a compiled catalog to a host.
//
// # Overview
//
// A compilation produces a Config: an ordered list of Resources, each with an
// ID of the form Kind[Title], its desired state as JSON and its declared
// relationships. The package works on that model only; it never touches a
// host.
//
//   - DAGBuilder validates relationships, rejects dangling references and
//     cycles, and assigns each resource a level in the apply order.
//   - DiffConfigs compares two compilations resource by resource.
//   - EngineError classifies failures as transient, conflict or permanent.
//
// # Relationships
//
// A require relationship orders its target first. Notify and before order the
// declaring resource first; notify additionally marks the target for refresh.
//
//	builder := engine.NewDAGBuilder()
//	graph, err := builder.BuildGraph(cfg.Resources)
//	if err != nil {
//	    return err
//	}
//	fmt.Print(builder.ToDOT())
//
// # Error Handling
//
// Errors are classified for retry logic:
//
//   - Transient: may succeed on retry (a locked archive database)
//   - Conflict: state conflicts in the archive
//   - Permanent: non-recoverable (invalid parameters, cycles, template failures)
//
// Use IsTransient, IsConflict, IsPermanent and CodeOf to inspect errors.
package engine
