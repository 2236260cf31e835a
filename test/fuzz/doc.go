// Package fuzz holds fuzz targets for the parsers that see untrusted bytes.
// Run with: go test -fuzz=FuzzName -fuzztime=30s ./test/fuzz/
package fuzz
