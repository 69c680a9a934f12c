// Package tokenid derives content identities for lazily minted tokens.
//
// An identity is reproducible by anyone holding the content bytes and the
// creator address. It is an interoperability contract with the JavaScript
// tooling that signs permits: the digest is sha1 (the legacy hash accepted by
// `ipfs add --hash sha1`), the binding hash is keccak256 over the standard ABI
// encoding of (uint160 digest, address creator).
//
// The creator cannot be read back out of an ID; it can only be confirmed with
// BoundTo, which is how the claim path checks that the permit signer is the
// creator the identity was derived for.
package tokenid
