// Package timeouts defines shared timeout constants used across the service.
package timeouts

import "time"

// UpstreamRequest caps a single call to the registration API.
const UpstreamRequest = 20 * time.Second

// HealthCheck caps one gRPC health probe.
const HealthCheck = time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second
