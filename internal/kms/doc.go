// Package kms provides a cloud-neutral key management service interface,
// grounded on IKeyManagementService.hpp from the original implementation.
// A Local backend reads secrets from the filesystem; AWS, Azure, Google and
// IBM backends are named but stubbed, since this deployment has no cloud
// credentials to exercise them against.
package kms
