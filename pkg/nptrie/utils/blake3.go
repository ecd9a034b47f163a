package utils

import (
	"fmt"
	"io"
	"os"

	blake3 "lukechampine.com/blake3"
)

// ComputeBLAKE3File computes the BLAKE3 hash of a dictionary file and
// returns a hex string. The CLI reports it after build so deployments
// can verify the shipped artifact.
func ComputeBLAKE3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
