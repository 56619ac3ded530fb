// Package output renders run results in several formats: a colored
// console view, JSON, JUnit XML, and TAP. Machine formats accumulate
// results and emit everything on Flush.
package output
