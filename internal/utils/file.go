package utils

import (
	"crypto/md5"
	"encoding/hex"
	"io"

	"github.com/spf13/afero"
)

const hashBufferSize = 64 * 1024

// FileHash returns the hex encoded MD5 digest of the file at path, which is the
// content hash published in server manifests.
func FileHash(fs afero.Fs, path string) (string, error) {
	file, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return ReaderHash(file)
}

// ReaderHash returns the hex encoded MD5 digest of everything read from r.
func ReaderHash(r io.Reader) (string, error) {
	hash := md5.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(hash, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
