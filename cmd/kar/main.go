// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kar packs directories into kar archives and extracts them.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/devblok/kiln/utility/kar"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"
)

var (
	author   = flag.String("author", currentUserName(), "Set the author of the package when compressing")
	version  = flag.Int64("version", 1, "Archive version number to create it with")
	extract  = flag.String("e", "", "Extract the file given")
	compress = flag.String("c", "", "Compress the given folder")
	list     = flag.String("l", "", "List the contents of the file given")
	dstFile  = flag.String("f", "out.kar", "Destination file or, when extracting, directory")
	silent   = flag.Bool("s", false, "Silent")
)

func currentUserName() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}

	ops := 0
	for _, op := range []string{*extract, *compress, *list} {
		if op != "" {
			ops++
		}
	}

	var err error
	switch {
	case ops == 0:
		flag.PrintDefaults()
		return
	case ops > 1:
		err = errors.New("only one operation at a time")
	case *compress != "":
		err = compressDir(*compress, *dstFile)
	case *extract != "":
		err = extractArchive(*extract, *dstFile)
	case *list != "":
		err = listArchive(*list)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func compressDir(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return errors.Errorf("destination %s exists, will not overwrite", dst)
	}

	b, err := kar.NewBuilder(kar.Header{
		Author:      *author,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.AddDir(src); err != nil {
		return err
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := b.WriteTo(f)
	if err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"files": b.Len(),
		"bytes": n,
	}).Infof("wrote %s", dst)
	return nil
}

func openArchive(path string) (*kar.Archive, *mmap.ReaderAt, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	a, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, nil, errors.Wrap(err, path)
	}
	return a, r, nil
}

func extractArchive(src, dir string) error {
	if dir == "out.kar" {
		dir = "."
	}
	a, r, err := openArchive(src)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := a.Extract(dir); err != nil {
		return err
	}
	log.WithField("files", len(a.Files())).Infof("extracted %s into %s", src, dir)
	return nil
}

func listArchive(src string) error {
	a, r, err := openArchive(src)
	if err != nil {
		return err
	}
	defer r.Close()

	h := a.Header()
	fmt.Printf("author: %s\nversion: %d\ncreated: %s\n",
		h.Author, h.Version, time.Unix(h.DateCreated, 0).Format(time.RFC3339))
	for _, e := range h.Index {
		fmt.Printf("%10d %10d %s\n", e.Size, e.CompressedSize, e.Name)
	}
	return nil
}
