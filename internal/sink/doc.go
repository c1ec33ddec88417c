// Package sink handles post-completion publication: the result document on
// disk and the insertion into the search index service. Publication is a
// secondary step; a completed job stays completed when the sink fails.
package sink
