// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/devblok/kiln/utility/kar"
)

func writeArchive(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "opentest.kar")
	data := build(t, map[string]string{
		"test/test1.txt": "this is a test",
		"test/test2.txt": "this is another test",
	})
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenmmap(t *testing.T) {
	r, err := mmap.Open(writeArchive(t))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := kar.Open(r)
	if err != nil {
		t.Fatal(err)
	}

	if f, err := ar.ReadAll("test/test1.txt"); err != nil {
		t.Error(err)
	} else if strings.Compare("this is a test", string(f)) != 0 {
		t.Error("result is not expected value")
	}

	if f, err := ar.ReadAll("test/test2.txt"); err != nil {
		t.Error(err)
	} else if strings.Compare("this is another test", string(f)) != 0 {
		t.Error("result is not expected value")
	}

	if _, err := ar.Open("test/test3.txt"); errors.Cause(err) != kar.ErrFileNotFound {
		t.Errorf("expected missing file, got %v", err)
	}
}

func TestExtract(t *testing.T) {
	r, err := os.Open(writeArchive(t))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := kar.Open(r)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := ar.Extract(dir); err != nil {
		t.Fatal(err)
	}
	data, err := ioutil.ReadFile(filepath.Join(dir, "test", "test2.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "this is another test" {
		t.Errorf("extracted %q", data)
	}
}

func TestAddDir(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "shaders"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(src, "shaders", "forward.vert.spv"), []byte{3, 2, 0x23, 7}, 0644); err != nil {
		t.Fatal(err)
	}

	builder, err := kar.NewBuilder(kar.Header{Author: "devblok"})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()
	if err := builder.AddDir(src); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "shaders.kar")
	f, err := os.Create(out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := builder.WriteTo(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	r, err := mmap.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	ar, err := kar.Open(r)
	if err != nil {
		t.Fatal(err)
	}
	data, err := ar.ReadAll("shaders/forward.vert.spv")
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 4 || data[0] != 3 {
		t.Errorf("read %v", data)
	}
}
