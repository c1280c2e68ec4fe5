// Package axisdb provides an embedded engine for named, axis-indexed
// scientific data: scalars, per-axis vectors, and per-axis-pair matrices,
// queried through a small string query language with cached, dependency-
// tracked results.
//
// # Basic Usage
//
// Open an engine with the in-memory backend:
//
//	db, err := axisdb.Open(axisdb.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// Define an axis and attach data to it:
//
//	db.SetAxis("cell", []string{"A", "B", "C"})
//	db.SetVector("cell", "age", axisdb.NewFloatVector("cell", nil, []float64{0.5, 1.5, 2.5}))
//
// Query it:
//
//	vec, err := db.VectorQuery("cell @ age > 1")
//	sum, err := db.ScalarQuery("cell @ age %> sum")
//
// # Queries
//
// A query names an axis (or a pair of axes), a property, and optionally
// filters, chained lookups, and a pipeline of element-wise or reduction
// operations:
//
//	cell & type = T @ age %> mean        mean age of the T cells
//	gene ; gene @ weight                 weight matrix, column-major
//	cell @ batch : age                   age of each cell's batch
//
// Results are cached under the query's canonical form. The cache tracks
// which stored entities each result read, and mutations invalidate
// exactly the dependent results, so a cached answer is never stale.
//
// # Storage Backends
//
// Data lives in a pluggable [Storage] backend: in-memory, a directory of
// compressed files, a SQLite database file, or an S3 bucket. Use
// [CopyStorage] to migrate between them.
package axisdb
