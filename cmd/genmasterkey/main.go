// Command genmasterkey writes a fresh 32-byte master key, hex encoded, to
// master.key in the working directory. The server reads it from there when
// MASTER_KEY_HEX is not set. An existing key file is never overwritten;
// rotating the key invalidates every outstanding capability token, so that
// step stays deliberate.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

const keyFile = "master.key"

func main() {
	if _, err := os.Stat(keyFile); err == nil {
		fmt.Fprintf(os.Stderr, "%s already exists, refusing to overwrite\n", keyFile)
		os.Exit(1)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(keyFile, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", keyFile, err)
		os.Exit(1)
	}
	fmt.Printf("master key written to %s\n", keyFile)
}
