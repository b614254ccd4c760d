// Package classification turns extractor tag proposals into an accepted tag
// list and derives safe output filenames.
//
// A Vocabulary is an explicit value per scope (the local inbox or one remote
// account). It is built from seed names and grows only through Learn, which
// reads bracketed tags from output files a human renamed.
package classification
