// Command synqa builds long-document QA benchmarks from parsed source tables.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
