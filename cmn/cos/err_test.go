/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/appsinstalled/memcload/cmn/cos"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Errs", func() {
	It("should dedup identical errors and keep counting past the cap", func() {
		var e cos.Errs
		for i := 0; i < 10; i++ {
			e.Add(errors.New("boom"))
		}
		Expect(e.Cnt()).To(Equal(10))
		Expect(e.Error()).To(ContainSubstring("boom"))
		Expect(e.Error()).To(ContainSubstring("and 9 more errors"))
	})

	It("should report a single error without a count suffix", func() {
		var e cos.Errs
		e.Add(errors.New("only one"))
		Expect(e.Error()).To(Equal("only one"))
	})

	It("should be empty when nothing was added", func() {
		var e cos.Errs
		Expect(e.Cnt()).To(Equal(0))
		Expect(e.Error()).To(Equal(""))
	})
})

var _ = Describe("DotRename", func() {
	It("should rename to a dot-prefixed basename in the same directory", func() {
		dir, err := os.MkdirTemp("", "memcload-cos-")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)
		src := filepath.Join(dir, "t1.tsv.gz")
		Expect(os.WriteFile(src, []byte("x"), 0o644)).To(Succeed())

		dst, err := cos.DotRename(src)
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(dst)).To(Equal(".t1.tsv.gz"))
		Expect(filepath.Dir(dst)).To(Equal(dir))

		_, statErr := os.Stat(src)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	It("should be a no-op when the path is already dot-prefixed", func() {
		dir, err := os.MkdirTemp("", "memcload-cos-")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)
		src := filepath.Join(dir, ".t1.tsv.gz")
		Expect(os.WriteFile(src, []byte("x"), 0o644)).To(Succeed())

		dst, err := cos.DotRename(src)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst).To(Equal(src))
	})
})
