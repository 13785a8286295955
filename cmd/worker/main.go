package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classtrack/internal/config"
	"classtrack/internal/queue"
	"classtrack/internal/store"
)

// redemptionEvent mirrors the payload the API publishes for each successful
// scan.
type redemptionEvent struct {
	StudentID int64  `json:"student_id"`
	SectionID int64  `json:"section_id"`
	Date      string `json:"date"`
}

// Worker consumes redemption events and maintains live presence counters in
// Redis, so dashboards can read today's headcount per section without hitting
// Postgres.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// The memory backend lives inside one process. As a separate binary
		// this worker will never see the API's events with it; it exists for
		// local runs without Redis. Cross-process delivery needs the redis
		// backend.
		log.Println("warning: memory queue backend selected; events published by the API process will not reach this worker")
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:redemptions")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for redemption events...")
	for msg := range messages {
		if msg.Type != "redeemed" {
			continue
		}

		var evt redemptionEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad event payload: %v", err)
			continue
		}

		// Counter per section per date, plus a date-wide total. Keys expire
		// after a week; historical counts live in Postgres.
		sectionKey := fmt.Sprintf("classtrack:present:%s:%d", evt.Date, evt.SectionID)
		totalKey := fmt.Sprintf("classtrack:present:%s", evt.Date)

		opCtx, opCancel := context.WithTimeout(ctx, 2*time.Second)
		pipe := redisClient.Client.TxPipeline()
		pipe.Incr(opCtx, sectionKey)
		pipe.Expire(opCtx, sectionKey, 7*24*time.Hour)
		pipe.Incr(opCtx, totalKey)
		pipe.Expire(opCtx, totalKey, 7*24*time.Hour)
		if _, err := pipe.Exec(opCtx); err != nil {
			log.Printf("counter update failed for section %d on %s: %v", evt.SectionID, evt.Date, err)
		} else {
			log.Printf("counted student %d present in section %d on %s", evt.StudentID, evt.SectionID, evt.Date)
		}
		opCancel()
	}

	log.Println("worker stopped")
}
