/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package writer_test

import (
	"context"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/appsinstalled/memcload/internal/record"
	"github.com/appsinstalled/memcload/internal/shard"
	"github.com/appsinstalled/memcload/internal/writer"
)

// scriptedConn replies with a pre-scripted sequence of failed-key lists,
// one per BulkSet call; the last scripted reply repeats once exhausted.
type scriptedConn struct {
	calls   [][]string
	n       int
	closed  bool
}

func (c *scriptedConn) BulkSet(_ context.Context, pairs []shard.Pair) ([]string, error) {
	idx := c.n
	if idx >= len(c.calls) {
		idx = len(c.calls) - 1
	}
	c.n++
	want := map[string]bool{}
	for _, k := range c.calls[idx] {
		want[k] = true
	}
	var failed []string
	for _, p := range pairs {
		if want[p.Key] {
			failed = append(failed, p.Key)
		}
	}
	return failed, nil
}

func (c *scriptedConn) Close() error { c.closed = true; return nil }

// flakyConn fails the first n calls with a retriable connection error, then
// behaves like an always-succeeds conn.
type flakyConn struct {
	failCalls int
	n         int
}

func (c *flakyConn) BulkSet(_ context.Context, pairs []shard.Pair) ([]string, error) {
	c.n++
	if c.n <= c.failCalls {
		return nil, syscall.ECONNRESET
	}
	return nil, nil
}

func (c *flakyConn) Close() error { return nil }

func testPolicy() writer.Policy {
	return writer.Policy{Tries: 3, Delay: time.Millisecond, Backoff: 2}
}

var _ = Describe("Writer.Run", func() {
	ep := shard.Endpoint{Dev: record.GAID, Addr: "127.0.0.1:0"}
	batch := []shard.Pair{
		{Key: "gaid:aaa", Payload: []byte("a")},
		{Key: "gaid:bbb", Payload: []byte("b")},
	}

	It("scenario D: a key that keeps failing until the final attempt is still counted processed", func() {
		conn := &scriptedConn{calls: [][]string{{"gaid:bbb"}, {"gaid:bbb"}, nil}}
		queue := make(chan writer.Task, 2)
		results := make(chan writer.Counters, 1)

		w := writer.New(ep, queue, results, false,
			writer.WithPolicy(testPolicy()),
			writer.WithDialer(func(_ context.Context, _ string, _ time.Duration) (writer.Conn, error) {
				return conn, nil
			}),
		)

		queue <- writer.Task{Batch: batch}
		queue <- writer.Task{Done: true}
		w.Run(context.Background())

		counters := <-results
		Expect(counters.Processed).To(Equal(2))
		Expect(counters.Errors).To(Equal(0))
		Expect(conn.n).To(Equal(3))
		Expect(conn.closed).To(BeTrue())
	})

	It("scenario E: a key that fails every attempt is counted as an error once retries are exhausted", func() {
		conn := &scriptedConn{calls: [][]string{{"gaid:bbb"}}}
		queue := make(chan writer.Task, 2)
		results := make(chan writer.Counters, 1)

		w := writer.New(ep, queue, results, false,
			writer.WithPolicy(testPolicy()),
			writer.WithDialer(func(_ context.Context, _ string, _ time.Duration) (writer.Conn, error) {
				return conn, nil
			}),
		)

		queue <- writer.Task{Batch: batch}
		queue <- writer.Task{Done: true}
		w.Run(context.Background())

		counters := <-results
		Expect(counters.Processed).To(Equal(1))
		Expect(counters.Errors).To(Equal(1))
		Expect(conn.n).To(Equal(3))
	})

	It("retries a retriable connection error and still counts the batch processed", func() {
		conn := &flakyConn{failCalls: 1}
		queue := make(chan writer.Task, 2)
		results := make(chan writer.Counters, 1)

		w := writer.New(ep, queue, results, false,
			writer.WithPolicy(testPolicy()),
			writer.WithDialer(func(_ context.Context, _ string, _ time.Duration) (writer.Conn, error) {
				return conn, nil
			}),
		)

		queue <- writer.Task{Batch: batch}
		queue <- writer.Task{Done: true}
		w.Run(context.Background())

		counters := <-results
		Expect(counters.Processed).To(Equal(2))
		Expect(counters.Errors).To(Equal(0))
		Expect(conn.n).To(Equal(2))
	})

	It("dry-run counts every pair processed without dialing", func() {
		queue := make(chan writer.Task, 2)
		results := make(chan writer.Counters, 1)

		dialed := false
		w := writer.New(ep, queue, results, true,
			writer.WithDialer(func(_ context.Context, _ string, _ time.Duration) (writer.Conn, error) {
				dialed = true
				return nil, nil
			}),
		)

		queue <- writer.Task{Batch: batch}
		queue <- writer.Task{Done: true}
		w.Run(context.Background())

		counters := <-results
		Expect(counters.Processed).To(Equal(2))
		Expect(dialed).To(BeFalse())
	})
})
