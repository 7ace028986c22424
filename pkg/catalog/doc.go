// Package catalog compiles a front-end parameter record and host facts into
// the ordered set of resources an external configuration-management engine
// applies.
//
// Compilation is a list of independent rules. Each rule has a predicate over
// the record and facts and declares zero or more resources when it holds:
//
//	compiler := catalog.NewCompiler(nil, nil, log.Logger)
//	cat, err := compiler.Compile(ctx, params, hostFacts)
//
// Every resource is addressed as Kind[Title] and declared at most once. File
// resources carry their exact content, rendered by package render. Hosts of
// an unsupported OS family get an empty catalog with Supported set to false.
package catalog
