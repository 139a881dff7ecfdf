// Command exqctl is the process entry point: "exqctl work" runs a
// Manager (C7) serving configured queues, "exqctl web" runs C9's webui
// server. Grounded on the teacher's cmd/workwebui/main.go (flag parsing,
// a *redis.Pool built from a -redis flag, signal-driven graceful stop).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/wallester/exq"
	"github.com/wallester/exq/webui"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "work":
		runWork(os.Args[2:])
	case "web":
		runWeb(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: exqctl <work|web> [flags]")
}

func runWork(args []string) {
	fs := flag.NewFlagSet("work", flag.ExitOnError)
	redisHostPort := fs.String("redis", ":6379", "redis hostport")
	namespace := fs.String("ns", "exq", "redis namespace")
	queues := fs.String("queues", "default", "comma-separated queue names")
	concurrency := fs.Int("concurrency", 25, "per-queue concurrency")
	scheduler := fs.Bool("scheduler", true, "enable the scheduler")
	fs.Parse(args)

	fmt.Println("Starting exqctl work:")
	fmt.Println("redis =", *redisHostPort)
	fmt.Println("namespace =", *namespace)
	fmt.Println("queues =", *queues)

	pool := newPool(*redisHostPort)
	registry := exq.NewRegistry()

	cfg := exq.Config{
		Namespace:        *namespace,
		Queues:           parseQueues(*queues, *concurrency),
		Concurrency:      *concurrency,
		SchedulerEnabled: *scheduler,
	}

	mgr := exq.NewManager(cfg, pool, registry)
	if err := mgr.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to start:", err)
		os.Exit(1)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	fmt.Println("\nShutting down...")
	mgr.Stop()
}

func runWeb(args []string) {
	fs := flag.NewFlagSet("web", flag.ExitOnError)
	redisHostPort := fs.String("redis", ":6379", "redis hostport")
	namespace := fs.String("ns", "exq", "redis namespace")
	listen := fs.String("listen", ":5040", "hostport to listen for HTTP JSON API")
	fs.Parse(args)

	fmt.Println("Starting exqctl web:")
	fmt.Println("redis =", *redisHostPort)
	fmt.Println("namespace =", *namespace)
	fmt.Println("listen =", *listen)

	pool := newPool(*redisHostPort)
	server := webui.NewServer(*namespace, pool, *listen)
	server.Start()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	server.Stop()
	fmt.Println("\nQuitting...")
}

func newPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxActive:   25,
		MaxIdle:     25,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
		Wait: true,
	}
}

func parseQueues(spec string, defaultConcurrency int) []exq.QueueConfig {
	var out []exq.QueueConfig
	name := ""
	for _, r := range spec + "," {
		if r == ',' {
			if name != "" {
				out = append(out, exq.QueueConfig{Name: name, Concurrency: defaultConcurrency})
			}
			name = ""
			continue
		}
		name += string(r)
	}
	return out
}
