package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/pvarchive"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader, err := pvarchive.Conf(ctx, "../../data/config.yaml")
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer reader.Close()

	end := time.Now()
	it, err := reader.FetchRawByName(ctx, "Sim:Sine", end.Add(-7*24*time.Hour), end)
	if err != nil {
		log.Fatalf("fetch raw: %v", err)
	}

	batches, closeStream := pvarchive.NewChannelStream(ctx, it, 1000, 8)
	fanoutWorker("plot", batches)

	if err := closeStream(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("stream: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []pvarchive.Sample) {
	for batch := range batches {
		fmt.Printf("[%s] received %d samples ending %s\n", name, len(batch), batch[len(batch)-1].Time.Format(time.RFC3339))
	}
}
