package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/labrental/instrument-marketplace-api/internal/di"
)

func main() {
	a, err := di.InitializeApp()
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		if err := a.Serve(); err != nil {
			log.Fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	a.Shutdown(context.Background())
}
