// Package pak is an api for an lz4 backed asset archive format.
// Its purpose is to be well suited for streaming resources from it.
// It's designed to be memory mapped, so (unlike tar) it knows where
// all the files are located before they're read. This nescesitates
// a bit of an unusual setup, where the archive itself is not compressed
// in any form, rather every file is individually compressed, so it
// could be immediately read from its place and decompressed on the fly.
// This somewhat compromises space efficiency, but space efficiency is
// not the primary goal of this package. It instead focuses on getting
// resources from disk to a usable state as fast as possible. It can be
// read from concurrently.
package pak

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
)

// package errors
var (
	ErrFileFormat  = errors.New("corrupted or not a pak archive")
	ErrUnknownFile = errors.New("no file with that name in the archive")
)

// Sizes relevant to the header of file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 16
)

var magic = [MagicLength]byte{'P', 'A', 'K', '\x00'}

// IndexEntry is info for one file in the file index. Offset is
// relative to the start of the data section, so the header can be
// encoded after the offsets are known.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header for pak files.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

func int64ToBinary(num int64) []byte {
	numBytes := make([]byte, HeaderSizeNumberLength)
	binary.PutVarint(numBytes, num)
	return numBytes
}

func binaryToInt64(bts []byte) (int64, error) {
	num, err := binary.ReadVarint(bytes.NewReader(bts))
	if err != nil {
		return 0, err
	}
	return num, nil
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	enc := gob.NewEncoder(&encoded)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	return gob.NewDecoder(bytes.NewBuffer(bts)).Decode(obj)
}
