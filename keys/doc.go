// Package keys holds the key material used around lazy-mint claims.
//
// Two kinds of keys live here:
//   - creator accounts: secp256k1 keys whose address is bound into token IDs
//     and which sign MintPermits;
//   - operator attestation keys: Ed25519 or Dilithium3 keys the claim service
//     uses to sign receipts.
//
// KeyStore is a local-first filesystem store for creator account seeds with
// deterministic per-role derivation. It is a tooling convenience, not part of
// the claim protocol.
package keys
