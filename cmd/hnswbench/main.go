// Command hnswbench builds an HNSW index over a dataset and reports recall,
// latency and throughput.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
