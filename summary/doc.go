// Package summary renders in-flight multipart messages for diagnostics.
//
// JSON frames are parsed into a Value tree and cropped before printing:
// long arrays keep a head/tail window around a count marker and a wide
// top-level object keeps its identifying keys. The result is bounded no
// matter how large the payload is.
package summary
