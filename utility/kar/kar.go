// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kar is an api for an lz4 backed file format.
// It's purpose is to be well suited for streaming resources
// from it. It's designed to be memory mapped, so (unlike tar) it knows
// where all the files are located before they're read. The archive itself
// is not compressed, rather every file is individually compressed, so it
// can be read from its place and decompressed on the fly. This trades
// some space for getting resources from disk to a usable state fast.
// It can be read from concurrently.
//
// Layout:
//
//	magic "KAR\x00" | header size (int64 LE, 16 bytes) | gob header | file data
//
// Index offsets are relative to the start of the file data.
package kar

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/pkg/errors"
)

// package errors
var (
	ErrFileFormat   = errors.New("corrupted or not a kar archive")
	ErrFileNotFound = errors.New("file not found in archive")
	ErrDuplicate    = errors.New("file already added to archive")
)

// Sizes relevant to the header of file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 16
)

var magic = [MagicLength]byte{'K', 'A', 'R', '\x00'}

// IndexEntry is info for one file in the file index.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header for kar files.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

// Lookup finds the index entry of a file.
func (h *Header) Lookup(name string) (IndexEntry, bool) {
	for _, e := range h.Index {
		if e.Name == name {
			return e, true
		}
	}
	return IndexEntry{}, false
}

// DataSize is the number of bytes the compressed files take.
func (h *Header) DataSize() int64 {
	var size int64
	for _, e := range h.Index {
		size += e.CompressedSize
	}
	return size
}

func int64ToBinary(num int64) []byte {
	bts := make([]byte, HeaderSizeNumberLength)
	binary.LittleEndian.PutUint64(bts, uint64(num))
	return bts
}

func binaryToint64(bts []byte) (int64, error) {
	if len(bts) < 8 {
		return 0, ErrFileFormat
	}
	num := int64(binary.LittleEndian.Uint64(bts))
	if num < 0 {
		return 0, ErrFileFormat
	}
	return num, nil
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	if err := gob.NewEncoder(&encoded).Encode(data); err != nil {
		return nil, errors.Wrap(err, "gob encode")
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(bts)).Decode(obj); err != nil {
		return errors.Wrap(ErrFileFormat, err.Error())
	}
	return nil
}
