package webui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wallester/exq"
)

func TestServerStartStop(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "webuitest"
	cleanKeyspace(ns, pool)

	s := NewServer(ns, pool, ":0")
	s.Start()
	s.Stop()
}

func TestServerQueues(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "webuitest"
	cleanKeyspace(ns, pool)

	client := exq.NewClient(ns, pool)
	_, err := client.Enqueue("wat", "Wat", []interface{}{1, 2}, exq.EnqueueOptions{})
	require.NoError(t, err)
	_, err = client.Enqueue("foo", "Foo", []interface{}{3, 4}, exq.EnqueueOptions{})
	require.NoError(t, err)

	s := NewServer(ns, pool, ":0")

	recorder := httptest.NewRecorder()
	request, _ := http.NewRequest("GET", "/queues", nil)
	s.router.ServeHTTP(recorder, request)
	assert.Equal(t, 200, recorder.Code)

	var res []map[string]interface{}
	err = json.Unmarshal(recorder.Body.Bytes(), &res)
	require.NoError(t, err)
	assert.Equal(t, 2, len(res))
}

func TestServerDeadNotFound(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "webuitest"
	cleanKeyspace(ns, pool)

	s := NewServer(ns, pool, ":0")

	recorder := httptest.NewRecorder()
	request, _ := http.NewRequest("GET", "/dead/nonexistent", nil)
	s.router.ServeHTTP(recorder, request)
	assert.Equal(t, 404, recorder.Code)
}

func newTestPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxActive:   3,
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
		Wait: true,
	}
}

func cleanKeyspace(namespace string, pool *redis.Pool) {
	conn := pool.Get()
	defer conn.Close()

	keys, err := redis.Strings(conn.Do("KEYS", namespace+"*"))
	if err != nil {
		panic("could not get keys: " + err.Error())
	}
	for _, k := range keys {
		if _, err := conn.Do("DEL", k); err != nil {
			panic("could not del: " + err.Error())
		}
	}
}
