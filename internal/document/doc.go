// Package document extracts structural features and link references from a
// parsed HTML tree. Every function here is pure: the tree is never modified
// and results are returned as values.
package document
