// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) (*Builder, error) {
	temp, err := ioutil.TempDir("", "karBuilder")
	if err != nil {
		return nil, errors.Wrap(err, "temporary directory")
	}
	return &Builder{
		tempDir: temp,
		header:  header,
		names:   make(map[string]bool),
	}, nil
}

type tempFile struct {
	// Name is the actual name of the file
	Name string

	// TempName is the temporary name given by the Builder
	TempName string

	// Size in uncompressed state
	Size int64

	Compressed int64
}

// Builder is the high level builder for the archive format.
// Archives are versioned and cannot be appended to, the Builder
// is the way to create one. Add compresses every file into a temporary
// directory, WriteTo bundles them together.
type Builder struct {
	tempDir string
	header  Header

	mutex sync.Mutex
	next  int
	names map[string]bool
	files []tempFile
}

func (b *Builder) reserve(name string) (string, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.names[name] {
		return "", errors.Wrap(ErrDuplicate, name)
	}
	b.names[name] = true
	b.next++
	return strconv.Itoa(b.next), nil
}

// Add compresses everything read from r into the builder under name.
// Blocks until lz4 finishes compression. Is safe to use concurrently
// in different goroutines.
func (b *Builder) Add(name string, r io.Reader) error {
	tempName, err := b.reserve(name)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(b.tempDir, tempName))
	if err != nil {
		return errors.Wrap(err, name)
	}
	defer f.Close()

	writer := lz4.NewWriter(f)
	written, err := io.Copy(writer, r)
	if err != nil {
		return errors.Wrap(err, name)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, name)
	}
	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, name)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = append(b.files, tempFile{
		Name:       name,
		TempName:   tempName,
		Size:       written,
		Compressed: info.Size(),
	})
	return nil
}

// AddFile adds the file at path under name.
func (b *Builder) AddFile(name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return b.Add(name, f)
}

// AddDir adds every regular file below dir, named by its slash separated
// path relative to dir.
func (b *Builder) AddDir(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.Mode().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return b.AddFile(filepath.ToSlash(rel), path)
	})
}

// Len is the number of files added so far.
func (b *Builder) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.files)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteTo bundles and writes all of the files added to the Builder
// into a kar archive that is ready to use. Files are ordered by name.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	sort.Slice(b.files, func(i, j int) bool { return b.files[i].Name < b.files[j].Name })

	header := b.header
	header.Index = nil
	var offset int64
	for _, v := range b.files {
		header.Index = append(header.Index, IndexEntry{
			Name:           v.Name,
			Offset:         offset,
			Size:           v.Size,
			CompressedSize: v.Compressed,
		})
		offset += v.Compressed
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	cw := &countingWriter{w: w}
	for _, part := range [][]byte{magic[:], int64ToBinary(int64(len(rawHeader))), rawHeader} {
		if _, err := cw.Write(part); err != nil {
			return cw.n, err
		}
	}

	for _, v := range b.files {
		f, err := os.Open(filepath.Join(b.tempDir, v.TempName))
		if err != nil {
			return cw.n, err
		}
		_, err = io.Copy(cw, f)
		f.Close()
		if err != nil {
			return cw.n, errors.Wrap(err, v.Name)
		}
	}
	return cw.n, nil
}

// Close removes the temporary files of the builder.
func (b *Builder) Close() error {
	return os.RemoveAll(b.tempDir)
}
