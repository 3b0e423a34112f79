// Package model defines stable boundary types for API layers.
//
// Registry identity (digest bytes and record references) is unaffected by any
// projection. These structs are the only types intended for direct JSON
// serialization by consumers of the HTTP and CLI surfaces.
package model
