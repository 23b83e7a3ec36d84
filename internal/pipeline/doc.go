// Package pipeline orchestrates a book run end to end: package document,
// access code, then every page object through fetch, decrypt and render on a
// bounded worker pool, finishing with PDF assembly and a completeness
// report. Object failures degrade the output; only an unusable manifest or a
// malformed access code aborts the run.
package pipeline
