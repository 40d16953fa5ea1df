// Package mstpv1 contains the protobuf messages used to carry captured
// frames and link metadata. The messages follow mstp.proto and are encoded
// by the reflection path of github.com/golang/protobuf.
package mstpv1
