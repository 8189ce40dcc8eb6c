package main

import (
	"github.com/CloudNativeWorks/sak-client/cmd"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
)

var version = "1.0.0"

func main() {
	if err := cmd.Execute(version); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}
