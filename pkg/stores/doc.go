// Package stores archives compiled catalogs in SQLite so successive
// compilations for a node can be compared. Each compilation keeps its
// resources in declaration order together with the policy findings raised
// against it. The schema is managed with embedded golang-migrate migrations.
package stores
