// Package parser reads plain-text request files (.http / .treq).
//
// A file holds one or more requests separated by "###" lines. Each
// request is a block of optional "# @key value" metadata comments, a
// request line ("METHOD url"), header lines, a blank line, and a body.
// A body of the form "< path" loads the body from a file at compile
// time. Lines like "@name = value" before the first request define
// file-level variables.
package parser
