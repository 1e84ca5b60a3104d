package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes derived from the session key
const (
	PurposeCookieSigning = "mailrelay cookie signing"
	PurposeStateSigning  = "mailrelay oauth state"
	PurposeAtRest        = "mailrelay at-rest encryption"
)

// DeriveKey expands master into a 32-byte key bound to purpose, so one
// configured secret never serves two algorithms directly.
func DeriveKey(master []byte, purpose string) ([]byte, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("master key is empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
	}
	return key, nil
}
