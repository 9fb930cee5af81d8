package main

import (
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/config"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/database"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/presence"
)

// The presence worker runs the expiry sweep on a schedule. Offline flips it
// produces reach connected clients through the Redis presence event channel,
// so the worker can run beside the API server or as its own deployment.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	rdb, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	tracker := presence.NewTracker(rdb, cfg.PresenceTimeout)

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse redis url for asynq: %v", err)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(presence.TaskSweep, tracker.HandleSweepTask)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{"default": 1},
	})

	scheduler := asynq.NewScheduler(redisOpt, nil)
	spec := fmt.Sprintf("@every %s", cfg.PresenceSweepEvery)
	if _, err := scheduler.Register(spec, presence.NewSweepTask()); err != nil {
		log.Fatalf("Failed to schedule presence sweep: %v", err)
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			log.Fatalf("Scheduler stopped: %v", err)
		}
	}()

	log.Printf("Presence worker sweeping every %s (timeout %s)", cfg.PresenceSweepEvery, cfg.PresenceTimeout)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("Worker stopped: %v", err)
	}
}
