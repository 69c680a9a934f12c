// Package model defines the JSON boundary types of the claim service.
//
// Integers travel as decimal strings (0x-hex is accepted on input), addresses
// and byte strings as 0x-hex. Converting to and from the protocol types is
// lossless; a permit's signing digest never depends on how it was encoded here.
package model
