// Package storage holds the durable SecureStore backends.
//
// BadgerStore is the embedded on-disk store used by the CLI credential jar.
// Each server address gets its own namespace, entries expire through Badger
// TTLs, and values can be sealed with a passphrase-derived key.
//
// The memory, redisstore and sqlstore subpackages provide the server-side
// alternatives.
package storage
