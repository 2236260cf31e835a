// Package benchmark holds throughput benchmarks for the session hot paths:
// sealing and opening chat messages, the key exchange, and the framing and
// routing of plaintext.
//
//	go test -bench=. -benchmem ./test/benchmark/
package benchmark
