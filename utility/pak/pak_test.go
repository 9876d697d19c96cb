package pak_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alexthill/shaderpixel/utility/pak"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func buildTestArchive(t *testing.T) []byte {
	t.Helper()

	builder := pak.NewBuilder(pak.Header{
		Author:      "shaderpixel",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err := builder.Add("test", bytes.NewReader([]byte(testString1))); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("test2", bytes.NewReader([]byte(testString2))); err != nil {
		t.Fatal(err)
	}

	buf := bytes.NewBuffer([]byte{})
	if written, err := builder.WriteTo(buf); err != nil {
		t.Fatal(err)
	} else if written != int64(buf.Len()) {
		t.Errorf("WriteTo reported %d bytes, wrote %d", written, buf.Len())
	}
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	data := buildTestArchive(t)

	ar, err := pak.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	f, err := ar.Open("test")
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != int64(len(testString1)) {
		t.Errorf("size is %d, want %d", f.Size(), len(testString1))
	}

	result := make([]byte, len(testString1))
	if n, err := f.Read(result); err != nil {
		t.Error(err)
	} else if n < len(testString1) {
		t.Errorf("read %d bytes, want %d", n, len(testString1))
	}

	if strings.Compare(string(result), testString1) != 0 {
		t.Error("test string does not match up")
	}
}

func TestCreateAndReadAll(t *testing.T) {
	data := buildTestArchive(t)

	ar, err := pak.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	if f, err := ar.ReadAll("test"); err != nil {
		t.Error(err)
	} else if strings.Compare(string(f), testString1) != 0 {
		t.Error("test string does not match up")
	}

	if f, err := ar.ReadAll("test2"); err != nil {
		t.Error(err)
	} else if strings.Compare(string(f), testString2) != 0 {
		t.Error("test string does not match up")
	}
}

func TestNames(t *testing.T) {
	data := buildTestArchive(t)

	ar, err := pak.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	names := ar.Names()
	if len(names) != 2 || names[0] != "test" || names[1] != "test2" {
		t.Errorf("unexpected name list: %v", names)
	}
}

func TestUnknownFile(t *testing.T) {
	data := buildTestArchive(t)

	ar, err := pak.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ar.ReadAll("nope"); err != pak.ErrUnknownFile {
		t.Errorf("got %v, want ErrUnknownFile", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	garbage := append([]byte("TAR\x00"), make([]byte, 64)...)
	if _, err := pak.Open(bytes.NewReader(garbage)); err != pak.ErrFileFormat {
		t.Errorf("got %v, want ErrFileFormat", err)
	}
}
