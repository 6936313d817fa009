package main

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/vish/memory-game/internal/cli"
)

func main() {
	// glog writes to files under /tmp unless told otherwise.
	if err := flag.Set("logtostderr", "true"); err != nil {
		glog.Fatalf("failed to configure logging: %v", err)
	}
	defer glog.Flush()

	if err := cli.Execute(); err != nil {
		glog.Flush()
		os.Exit(1)
	}
}
