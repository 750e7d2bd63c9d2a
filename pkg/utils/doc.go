// Package utils holds small helpers shared across groundgraph packages:
// name normalization and tokenization, panic recovery for worker
// goroutines, and the Parquet graph snapshot writer.
package utils
