package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"gocloud.dev/blob"
)

// FingerprintFile generates the SHA-256 hash of a file stored in a
// blob.Bucket instance. Fingerprints are computed on the file's bytes as
// stored, before any metadata embedding.
func FingerprintFile(ctx context.Context, bucket *blob.Bucket, path string) (string, error) {

	fh, err := bucket.NewReader(ctx, path, nil)

	if err != nil {
		return "", err
	}

	defer fh.Close()

	h := sha256.New()

	_, err = io.Copy(h, fh)

	if err != nil {
		return "", err
	}

	hash := h.Sum(nil)
	str := hex.EncodeToString(hash)

	return str, nil
}

// FingerprintBytes generates the SHA-256 hash of body.
func FingerprintBytes(body []byte) string {

	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}
