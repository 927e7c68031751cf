package main

import (
	"log"
	"os"

	approuters "Meetpulse/internal/app_routers"
	"Meetpulse/internal/configuration"
)

func main() {
	configPath := os.Getenv("MEETPULSE_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}

	container, err := configuration.BuildContainer(configPath)
	if err != nil {
		log.Fatalf("failed to build container: %v", err)
	}
	defer container.Close()

	approuters.StartServer(container)
}
