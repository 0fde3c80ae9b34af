// Command lockcheck runs the lock discipline analyzer:
//
//	go run ./cmd/lockcheck ./...
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"hifibridge/internal/lint/lockcheck"
)

func main() {
	singlechecker.Main(lockcheck.Analyzer)
}
