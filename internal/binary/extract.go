package binary

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxBinarySize caps how much a single archive entry may expand to.
const maxBinarySize = 1 << 30

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ErrBinaryNotFound is returned when the archive has no entry for the binary.
var ErrBinaryNotFound = errors.New("binary not found in archive")

// Extractor handles archive extraction
type Extractor struct{}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// openTar opens archivePath as a tar stream, decompressing gzip or zstd
// according to the file's magic bytes.
func openTar(archivePath string) (*tar.Reader, func(), error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, nil, fmt.Errorf("read archive header: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return tar.NewReader(gz), func() { gz.Close(); f.Close() }, nil

	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return tar.NewReader(zr), func() { zr.Close(); f.Close() }, nil

	default:
		f.Close()
		return nil, nil, fmt.Errorf("unsupported archive format (expected .tar.gz or .tar.zst)")
	}
}

// ExtractBinary writes the archive entry named binaryName (matched by base
// name) to a new temporary file in destDir and returns its path. The file
// is synced and has mode 0755. The caller renames or removes it.
//
// Failures to create or chmod the file are classified as permission errors;
// everything else is left for the caller to classify as an archive error.
func (e *Extractor) ExtractBinary(archivePath, destDir, binaryName string) (string, error) {
	tr, closeFn, err := openTar(archivePath)
	if err != nil {
		return "", err
	}
	defer closeFn()

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, binaryName)
		}
		if err != nil {
			return "", fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != binaryName {
			continue
		}
		if header.Size > maxBinarySize {
			return "", fmt.Errorf("archive entry %s too large: %d bytes", header.Name, header.Size)
		}

		return writeTemp(tr, destDir, binaryName, header.Size)
	}
}

// removeTempBinaries deletes temp files left in dir by an update that died
// before its rename. Callers must hold the install lock.
func removeTempBinaries(dir, binaryName string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "."+binaryName+".tmp-*"))
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}

// writeTemp copies size bytes from r into a fresh hidden temp file in dir.
func writeTemp(r io.Reader, dir, binaryName string, size int64) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", outcome.Wrap(outcome.KindPermission, "create install dir", err)
	}

	out, err := os.CreateTemp(dir, "."+binaryName+".tmp-*")
	if err != nil {
		return "", outcome.Wrap(outcome.KindPermission, "create temp binary", err)
	}
	tmpPath := out.Name()

	success := false
	defer func() {
		if !success {
			out.Close()
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(out, io.LimitReader(r, maxBinarySize))
	if err != nil {
		return "", fmt.Errorf("write binary: %w", err)
	}
	if written != size {
		return "", fmt.Errorf("truncated archive entry: got %d of %d bytes", written, size)
	}
	if err := out.Sync(); err != nil {
		return "", fmt.Errorf("sync binary: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close binary: %w", err)
	}
	if err := SetExecutable(tmpPath); err != nil {
		return "", outcome.Wrap(outcome.KindPermission, "", err)
	}

	success = true
	return tmpPath, nil
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	// Set permissions to 0755 (rwxr-xr-x)
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}
