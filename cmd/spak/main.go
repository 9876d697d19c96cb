// spak bundles loose asset files into pak archives and extracts them
// again. Archives are versioned and cannot be appended to, rebuild the
// archive to change its contents.
package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"golang.org/x/exp/mmap"

	"github.com/alexthill/shaderpixel/utility/pak"
)

func init() {
	u, err := user.Current()
	if err != nil {
		currentUserName = "unknown"
		return
	}
	currentUserName = u.Name
}

var (
	currentUserName string
	author          = flag.String("author", currentUserName, "Set the author of the package when compressing")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the given archive")
	compress        = flag.String("c", "", "Compress the given file/folder")
	dstFile         = flag.String("f", "out.pak", "Destination file")
	dstDir          = flag.String("d", ".", "Destination directory for extraction")
)

func main() {
	var opMade bool
	flag.Parse()

	if *extract != "" && *compress != "" {
		panic(errors.New("only one operation at a time"))
	}

	if *extract != "" {
		opMade = true
		if err := extractFiles(); err != nil {
			panic(err)
		}
	}

	if *compress != "" {
		opMade = true
		if err := compressFiles(); err != nil {
			panic(err)
		}
	}

	if !opMade {
		flag.PrintDefaults()
	}
}

func compressFiles() error {
	if _, err := os.Stat(*dstFile); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	dst, err := os.Create(*dstFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	var filesToCompress []string
	if err := filepath.Walk(*compress, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		filesToCompress = append(filesToCompress, path)
		return nil
	}); err != nil {
		return err
	}

	builder := pak.NewBuilder(pak.Header{
		Author:      *author,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})

	for _, ftc := range filesToCompress {
		f, err := os.Open(ftc)
		if err != nil {
			return err
		}

		// Store paths relative to the compression root so extraction
		// recreates the same layout anywhere.
		name, err := filepath.Rel(*compress, ftc)
		if err != nil {
			name = ftc
		}

		addErr := builder.Add(name, f)
		f.Close()
		if addErr != nil {
			return addErr
		}
	}

	_, err = builder.WriteTo(dst)
	return err
}

func extractFiles() error {
	reader, err := mmap.Open(*extract)
	if err != nil {
		return err
	}
	defer reader.Close()

	archive, err := pak.Open(reader)
	if err != nil {
		return err
	}

	for _, name := range archive.Names() {
		src, err := archive.Open(name)
		if err != nil {
			return err
		}

		path := filepath.Join(*dstDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}

		dst, err := os.Create(path)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(dst, src)
		closeErr := dst.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}
