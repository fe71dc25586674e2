package hashledger

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChecksummerKnownDigests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0644))

	tests := []struct {
		algorithm string
		expected  string
	}{
		{"md5", "6f5902ac237024bdd0c176cb93063dc4"},
		{"sha1", "22596363b3de40b06f981fb85d82312e8c0ed511"},
		{"sha256", "a948904f2f0f479b8f8197694b30184b0d2ed1c1cd2a1ec0fb85d299a192a447"},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			// A tiny buffer forces several reads
			fc, err := NewFileChecksummer(tt.algorithm, 3)
			require.NoError(t, err)

			digest, err := fc.Checksum(path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, digest)
			assert.Len(t, digest, fc.Algorithm().HexLen())
		})
	}
}

func TestFileChecksummerEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	fc, err := NewFileChecksummer("md5", 81920)
	require.NoError(t, err)

	digest, err := fc.Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", digest)
}

func TestFileChecksummerMissingFile(t *testing.T) {
	fc, err := NewFileChecksummer("md5", 1024)
	require.NoError(t, err)

	_, err = fc.Checksum(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNewFileChecksummerRejectsBadInput(t *testing.T) {
	_, err := NewFileChecksummer("crc32", 1024)
	assert.Error(t, err)

	_, err = NewFileChecksummer("md5", 0)
	assert.Error(t, err)
}

func TestFileChecksummerConcurrentUse(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("ledger", 10000)
	path := filepath.Join(dir, "big")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	fc, err := NewFileChecksummer("sha256", 4096)
	require.NoError(t, err)
	want, err := fc.Checksum(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := fc.Checksum(path)
			if err != nil || got != want {
				errs <- got
			}
		}()
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("concurrent checksum mismatch: got %q, want %q", got, want)
	}
}

func TestHashStringToHexString(t *testing.T) {
	alg, err := GetHashAlgorithm("MD5")
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashStringToHexString("hello", alg))
}
