package hashledger

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"
)

// Checksummer computes the content digest of a file.
// Implementations must be safe for concurrent use.
type Checksummer interface {
	Checksum(absPath string) (string, error)
}

// HashAlgorithm represents a hash algorithm configuration
type HashAlgorithm struct {
	Name    string
	Size    int // Digest size in bytes
	NewFunc func() hash.Hash
}

// HexLen returns the length of the lowercase hex digest
func (a *HashAlgorithm) HexLen() int {
	return a.Size * 2
}

// GetHashAlgorithm returns the hash algorithm configuration for the given name
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	switch strings.ToLower(name) {
	case "md5":
		return &HashAlgorithm{
			Name:    "md5",
			Size:    md5.Size,
			NewFunc: func() hash.Hash { return md5.New() },
		}, nil
	case "sha1":
		return &HashAlgorithm{
			Name:    "sha1",
			Size:    sha1.Size,
			NewFunc: func() hash.Hash { return sha1.New() },
		}, nil
	case "sha256":
		return &HashAlgorithm{
			Name:    "sha256",
			Size:    sha256.Size,
			NewFunc: func() hash.Hash { return sha256.New() },
		}, nil
	case "sha512":
		return &HashAlgorithm{
			Name:    "sha512",
			Size:    sha512.Size,
			NewFunc: func() hash.Hash { return sha512.New() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// FileChecksummer hashes whole files through a reusable read buffer
type FileChecksummer struct {
	algorithm *HashAlgorithm
	buffers   sync.Pool
}

// NewFileChecksummer creates a checksummer for the named algorithm and buffer size
func NewFileChecksummer(algorithm string, bufferSize int) (*FileChecksummer, error) {
	alg, err := GetHashAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("invalid hash buffer size: %d", bufferSize)
	}

	fc := &FileChecksummer{algorithm: alg}
	fc.buffers.New = func() interface{} {
		buf := make([]byte, bufferSize)
		return &buf
	}
	return fc, nil
}

// Algorithm returns the algorithm in use
func (fc *FileChecksummer) Algorithm() *HashAlgorithm {
	return fc.algorithm
}

// Checksum returns the lowercase hex digest of the file at absPath
func (fc *FileChecksummer) Checksum(absPath string) (string, error) {
	file, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", absPath, err)
	}
	defer file.Close()

	bufPtr := fc.buffers.Get().(*[]byte)
	defer fc.buffers.Put(bufPtr)

	hasher := fc.algorithm.NewFunc()
	if _, err := io.CopyBuffer(hasher, file, *bufPtr); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", absPath, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashStringToHexString calculates the hash of a string and returns it as a hex string
func HashStringToHexString(data string, algorithm *HashAlgorithm) string {
	hasher := algorithm.NewFunc()
	hasher.Write([]byte(data))
	return hex.EncodeToString(hasher.Sum(nil))
}
