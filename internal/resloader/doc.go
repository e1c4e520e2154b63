// Package resloader provides a cloud-neutral, read-only resource loader
// for CA bundles and certificate chains, grounded on IReadOnlyResLoader.hpp
// from the original implementation. A Local backend reads from the process
// filesystem; AWS, Azure, Google and IBM backends are named but stubbed.
package resloader
