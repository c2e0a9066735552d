/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ingest

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("acceptable", func() {
	It("accepts a file with zero processed records", func() {
		Expect(acceptable(0, 0)).To(BeTrue())
		Expect(acceptable(0, 5)).To(BeTrue())
	})

	It("accepts an error rate strictly below the threshold", func() {
		Expect(acceptable(1000, 9)).To(BeTrue()) // 0.009
	})

	It("rejects an error rate at or above the threshold", func() {
		Expect(acceptable(100, 1)).To(BeFalse()) // 0.01, not < 0.01
		Expect(acceptable(10, 5)).To(BeFalse())
	})
})
