// Command tagflowd runs the tagflow daemon without the CLI front end.
package main

import (
	"context"
	"flag"
	"log"

	"tagflow/internal/config"
	"tagflow/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override [logging].level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("tagflowd: %v", err)
	}
}
