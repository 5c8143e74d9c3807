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

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

// Open opens the kar archived from r. It will also check
// if the file is actually a kar archive, will return an error
// when file incorrect.
func Open(r io.ReaderAt) (*Archive, error) {
	var m [MagicLength]byte
	if _, err := r.ReadAt(m[:], 0); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	} else if m != magic {
		return nil, ErrFileFormat
	}

	headerSizeBytes := make([]byte, HeaderSizeNumberLength)
	if _, err := r.ReadAt(headerSizeBytes, MagicLength); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}
	headerSize, err := binaryToint64(headerSizeBytes)
	if err != nil {
		return nil, err
	}

	headerBytes := make([]byte, headerSize)
	if _, err := r.ReadAt(headerBytes, MagicLength+HeaderSizeNumberLength); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}

	ar := Archive{
		reader:     r,
		dataOffset: MagicLength + HeaderSizeNumberLength + headerSize,
		index:      make(map[string]IndexEntry),
	}
	if err := gobDecode(&ar.header, headerBytes); err != nil {
		return nil, err
	}
	for _, e := range ar.header.Index {
		ar.index[e.Name] = e
	}
	return &ar, nil
}

// Archive provides concurrent io for a kar file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader     io.ReaderAt
	dataOffset int64
	header     Header
	index      map[string]IndexEntry
}

// Header returns the archive header with its index.
func (a *Archive) Header() Header {
	return a.header
}

// Files lists the file names in archive order.
func (a *Archive) Files() []string {
	names := make([]string, len(a.header.Index))
	for i, e := range a.header.Index {
		names[i] = e.Name
	}
	return names
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, r.Size())
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if err == io.EOF {
			return data, nil
		} else if err != nil {
			return nil, errors.Wrap(err, name)
		}
	}
}

// Open returns a Reader for a file in the Archive
func (a *Archive) Open(name string) (*Reader, error) {
	e, ok := a.index[name]
	if !ok {
		return nil, errors.Wrap(ErrFileNotFound, name)
	}
	section := io.NewSectionReader(a.reader, a.dataOffset+e.Offset, e.CompressedSize)
	return &Reader{
		entry:  e,
		reader: lz4.NewReader(section),
	}, nil
}

// Extract writes every file of the archive below dir.
func (a *Archive) Extract(dir string) error {
	for _, e := range a.header.Index {
		target := filepath.Join(dir, filepath.FromSlash(e.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		data, err := a.ReadAll(e.Name)
		if err != nil {
			return err
		}
		if err := ioutil.WriteFile(target, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry  IndexEntry
	reader io.Reader
}

// Name of the file being read.
func (r *Reader) Name() string {
	return r.entry.Name
}

// Size is the decompressed size of the file.
func (r *Reader) Size() int64 {
	return r.entry.Size
}

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}
