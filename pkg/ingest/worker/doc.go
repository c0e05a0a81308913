// Package worker implements the job coordinator (C9): the at-least-once
// loop that pops a job, infers and diffs its structural schema, decides
// whether to promote a new schema version, validates every document
// against the governing schema, and routes each to the durable store or
// the dead-letter sink.
//
// Governing-schema ambiguity: a deployment fixes, once at construction,
// whether documents are validated against the latest previously promoted
// schema (GoverningLatest, the default) or against the freshly inferred
// candidate schema (GoverningCandidate) regardless of whether this job's
// candidate was itself promoted. GoverningLatest is the default because it
// matches the "validate first, promote independently" narrative used in
// the scenario walkthroughs this system was built against.
package worker
