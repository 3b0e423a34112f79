// Package keys holds the service account identity.
//
// An account is an Ed25519 seed. Its address ("0x" + 40 hex) is the owner
// recorded for registrations made through the service. The same seed also
// derives a Dilithium3 key for post-quantum registration receipts.
//
// Seeds are stored as hex, optionally encrypted with an age scrypt passphrase.
package keys
