/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ingest_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/appsinstalled/memcload/cmn/cos"
	"github.com/appsinstalled/memcload/internal/ingest"
	"github.com/appsinstalled/memcload/internal/shard"
	"github.com/appsinstalled/memcload/internal/writer"
)

var _ = BeforeSuite(func() {
	cos.InitShortID(1)
})

type alwaysStoreConn struct{}

func (alwaysStoreConn) BulkSet(context.Context, []shard.Pair) ([]string, error) { return nil, nil }
func (alwaysStoreConn) Close() error                                           { return nil }

func writeGzipFile(dir, name string, lines []string) string {
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		gz.Write([]byte(l + "\n"))
	}
	Expect(gz.Close()).To(Succeed())
	Expect(os.WriteFile(path, buf.Bytes(), 0o644)).To(Succeed())
	return path
}

var _ = Describe("Processor.Process", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "memcload-ingest-")
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() {
		os.RemoveAll(dir)
	})

	fakeDialer := func(_ context.Context, _ string, _ time.Duration) (writer.Conn, error) {
		return alwaysStoreConn{}, nil
	}

	It("scenario A: happy path routes two lines to their shards and accepts the file", func() {
		path := writeGzipFile(dir, "t1.tsv.gz", []string{
			"idfa\taaa\t1.0\t2.0\t1,2,3",
			"gaid\tbbb\t3.0\t4.0\t4,5",
		})
		table := shard.NewTable("127.0.0.1:1", "127.0.0.1:2", "127.0.0.1:3", "127.0.0.1:4")
		p := ingest.New(table, ingest.WithDialer(fakeDialer))

		report, err := p.Process(context.Background(), path)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Processed).To(Equal(2))
		Expect(report.Errors).To(Equal(0))
		Expect(report.Accepted).To(BeTrue())
	})

	It("scenario B: an unknown device type counts as an error but does not fail the file read", func() {
		path := writeGzipFile(dir, "t2.tsv.gz", []string{"xxx\tzzz\t0\t0\t1"})
		table := shard.NewTable("127.0.0.1:1", "127.0.0.1:2", "127.0.0.1:3", "127.0.0.1:4")
		p := ingest.New(table, ingest.WithDialer(fakeDialer))

		report, err := p.Process(context.Background(), path)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Processed).To(Equal(0))
		Expect(report.Errors).To(Equal(1))
		Expect(report.Accepted).To(BeTrue()) // processed == 0 is vacuously accepted
	})

	It("scenario F: dry-run counts every valid pair processed without dialing", func() {
		path := writeGzipFile(dir, "t3.tsv.gz", []string{
			"idfa\taaa\t1.0\t2.0\t1,2,3",
			"gaid\tbbb\t3.0\t4.0\t4,5",
		})
		table := shard.NewTable("127.0.0.1:1", "127.0.0.1:2", "127.0.0.1:3", "127.0.0.1:4")
		dialed := false
		p := ingest.New(table, ingest.WithDryRun(true), ingest.WithDialer(
			func(ctx context.Context, addr string, d time.Duration) (writer.Conn, error) {
				dialed = true
				return alwaysStoreConn{}, nil
			}))

		report, err := p.Process(context.Background(), path)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Processed).To(Equal(2))
		Expect(dialed).To(BeFalse())
	})
})
