// Package gateway provides the per-request policies veilgate layers in
// front of a downstream handler chain: claims-based redaction of outgoing
// JSON bodies and sliding-window monitoring of per-client request
// frequency. Both are http.Handler middlewares applied uniformly,
// regardless of the business payload shape.
package gateway
