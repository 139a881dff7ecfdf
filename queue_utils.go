package exq

// PauseQueue and UnpauseQueue are the supplemented operator controls for
// temporarily halting a queue's consumption without stopping the process
// (e.g. to let a downstream dependency recover). Grounded on the
// teacher's queue_utils.go (PauseJobs/UnpauseJobs -- a SET/DEL flag
// checked by the fetch loop), generalized from per-job-type to per-queue.
func (c *Client) PauseQueue(queue string) error {
	conn := c.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", redisKeyPaused(c.namespace, queue), "1"); err != nil {
		return redisUnavailable("pause_queue", err)
	}
	return nil
}

// UnpauseQueue clears a queue's paused flag.
func (c *Client) UnpauseQueue(queue string) error {
	conn := c.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", redisKeyPaused(c.namespace, queue)); err != nil {
		return redisUnavailable("unpause_queue", err)
	}
	return nil
}

// IsQueuePaused reports whether a queue is currently paused. Checked by
// QueuePool's fetch loop before every dequeue attempt.
func (c *Client) IsQueuePaused(queue string) (bool, error) {
	conn := c.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("GET", redisKeyPaused(c.namespace, queue))
	if err != nil {
		return false, redisUnavailable("is_queue_paused", err)
	}
	return reply != nil, nil
}
