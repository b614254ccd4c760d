// Package tesseract implements an offline extractor on the Tesseract engine.
//
// The engine needs cgo and libtesseract, so the real implementation is
// only compiled with the "tesseract" build tag. Other builds get a New that
// reports the missing support. Tesseract returns text only: the title is
// the first non-empty line and tag proposals are matched against the
// vocabulary by keyword.
package tesseract
