/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package supervisor_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/appsinstalled/memcload/internal/ingest"
	"github.com/appsinstalled/memcload/internal/supervisor"
)

type fakeProcessor struct {
	failOn map[string]bool
}

func (f *fakeProcessor) Process(_ context.Context, path string) (ingest.Report, error) {
	if f.failOn[filepath.Base(path)] {
		return ingest.Report{File: path}, errTest
	}
	return ingest.Report{File: path, Processed: 1, Accepted: true}, nil
}

var errTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

var _ = Describe("Supervisor.Run", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "memcload-sup-")
		Expect(err).NotTo(HaveOccurred())
		for _, name := range []string{"b.tsv.gz", "a.tsv.gz", "c.tsv.gz"} {
			Expect(os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)).To(Succeed())
		}
	})
	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("renames every successfully processed file regardless of completion order", func() {
		proc := &fakeProcessor{}
		sup := supervisor.New(filepath.Join(dir, "*.tsv.gz"), 2, proc, nil)

		summary, err := sup.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Files).To(Equal(3))
		Expect(summary.Renamed).To(Equal(3))
		Expect(summary.Failed).To(Equal(0))

		for _, name := range []string{".a.tsv.gz", ".b.tsv.gz", ".c.tsv.gz"} {
			_, statErr := os.Stat(filepath.Join(dir, name))
			Expect(statErr).NotTo(HaveOccurred())
		}
	})

	It("does not rename a file whose processor returned an error, and continues with the rest", func() {
		proc := &fakeProcessor{failOn: map[string]bool{"b.tsv.gz": true}}
		sup := supervisor.New(filepath.Join(dir, "*.tsv.gz"), 2, proc, nil)

		summary, err := sup.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Renamed).To(Equal(2))
		Expect(summary.Failed).To(Equal(1))

		_, statErr := os.Stat(filepath.Join(dir, "b.tsv.gz"))
		Expect(statErr).NotTo(HaveOccurred()) // left untouched
		_, statErr = os.Stat(filepath.Join(dir, ".a.tsv.gz"))
		Expect(statErr).NotTo(HaveOccurred())
	})
})
