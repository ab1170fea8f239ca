// Package logstash contains the field pipeline shared by the formatter
// and handler layers of the slogstash library.
//
// This package is not intended for direct use by consumers of slogstash.
// It encapsulates bookkeeping-key stripping, default field merging,
// message interpolation, value normalization for JSON encoding, local
// host resolution, and loading configuration from the environment.
package logstash
