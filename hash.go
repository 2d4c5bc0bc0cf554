package gtfs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/transitboard/gtfs/constants"
)

// DatasetHash computes the content hash of the GTFS dataset in dir. The
// known dataset files are fed to a SHA-256 digest in canonical file-name
// order, each as its name followed by its content, so the hash changes
// exactly when schedule-relevant content does. Absent files are skipped.
func DatasetHash(dir string) (string, error) {
	digest := sha256.New()
	for _, file := range constants.DatasetFiles() {
		f, err := os.Open(filepath.Join(dir, string(file)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to hash dataset: %w", err)
		}
		digest.Write([]byte(file))
		_, err = io.Copy(digest, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", file, err)
		}
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
