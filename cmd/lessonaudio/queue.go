package main

import (
	"time"

	"github.com/example/go-lesson-audio/internal/config"
	"github.com/example/go-lesson-audio/internal/queue"
)

func queueConfig(qc config.QueueConfig) queue.Config {
	c := queue.DefaultConfig()
	if qc.URL != "" {
		c.URL = qc.URL
	}
	if qc.Stream != "" {
		c.Stream = qc.Stream
	}
	if qc.Subject != "" {
		c.Subject = qc.Subject
	}
	if qc.Durable != "" {
		c.Durable = qc.Durable
	}
	if qc.AckWait > 0 {
		c.AckWait = time.Duration(qc.AckWait) * time.Second
	}
	if qc.MaxDeliver > 0 {
		c.MaxDeliver = qc.MaxDeliver
	}
	return c
}
