// Package policy implements the claims-based field visibility rules used
// by the response redaction layer. A Store answers, per field name,
// whether a given principal may see the field; the recursive filtering of
// structured payloads lives in the redact subpackage.
package policy
