package main

import (
	"flag"
	_ "net/http/pprof" // register the /debug/pprof handlers
)

// TODO:
// - Propagate the caller's request ID to the logs
// - Rate limit the import endpoint
func main() {
	di := flag.String("di", "dig", "how dependencies are wired: dig | manual")
	flag.Parse()

	if *di == "manual" {
		startManual()
		return
	}
	startWithDig()
}
