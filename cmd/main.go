package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quizduel/backend/internal/config"
	"github.com/quizduel/backend/internal/server"
)

func main() {
	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		log.Fatal("CONFIG_PATH not set")
	}

	var c server.Config
	if err := config.Load(p, &c); err != nil {
		log.Fatalf("Load config from %s failed: %v", p, err)
	}

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	go s.Start()

	<-shutdown
	s.Shutdown()
}
