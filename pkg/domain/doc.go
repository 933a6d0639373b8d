// Package domain contains the types shared across veilgate components:
// principals, configuration snapshots, and security events. It has no
// dependencies on the packages that consume it.
package domain
