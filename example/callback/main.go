package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ghalamif/pvarchive/pkg/pvarchive"
)

func main() {
	cfg, err := pvarchive.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	reader, err := pvarchive.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer reader.Close()

	end := time.Now()
	it, err := reader.FetchRawByName(ctx, "Sim:Ramp", end.Add(-24*time.Hour), end)
	if err != nil {
		log.Fatalf("fetch raw: %v", err)
	}
	defer it.Close()

	callback := func(batch []pvarchive.Sample) error {
		for _, sample := range batch {
			fmt.Printf("%s kind=%s severity=%s status=%s\n",
				sample.Time.Format(time.RFC3339Nano),
				sample.Kind,
				sample.Alarm.Severity,
				sample.Alarm.Status,
			)
		}
		return nil
	}

	n, err := pvarchive.Drain(it, 500, callback)
	if err != nil {
		log.Fatalf("drain: %v", err)
	}
	log.Printf("read %d samples", n)
}
