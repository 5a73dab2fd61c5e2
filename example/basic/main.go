package main

import (
	"context"
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
	it, err := reader.FetchRawByName(ctx, "Sim:Ramp", end.Add(-time.Hour), end)
	if err != nil {
		log.Fatalf("fetch raw: %v", err)
	}
	defer it.Close()

	for sample, err := range it.All() {
		if err != nil {
			log.Fatalf("read sample: %v", err)
		}
		v, _ := sample.Number()
		fmt.Printf("%s %g %s\n", sample.Time.Format(time.RFC3339Nano), v, sample.Alarm.Severity)
	}
}
