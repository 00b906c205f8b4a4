// Package braintrust is the write-path core of the tracing/logging SDK:
// it collects partial, possibly out-of-order, possibly duplicated log-row
// mutations from application code and turns them into a small number of
// network-ready, causally-ordered batches.
//
// The pipeline is btrow.Reduce (fold mutations into consistent rows),
// btrow.Order (parents before children), and btbatch.Partition (size and
// count bounded batches). The Collector in this package wraps the pipeline
// with a pending queue and a background drain loop; btid mints and parses
// the portable identity tokens that address rows across services.
//
// The transport that actually sends batches, the per-provider
// instrumentation shims, and the read path are external collaborators:
// this package only defines the Transport interface they plug into.
package braintrust
