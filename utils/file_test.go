package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "dark.png", "notes.txt"} {
		test.That(t, os.WriteFile(filepath.Join(dir, name), []byte{1}, 0o600), test.ShouldBeNil)
	}
	test.That(t, os.Mkdir(filepath.Join(dir, "c.png"), 0o700), test.ShouldBeNil)

	files, err := ListFiles(dir, func(name string) bool {
		return strings.HasSuffix(name, ".png") && !strings.Contains(name, "dark")
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldResemble, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")})

	_, err = ListFiles(filepath.Join(dir, "missing"), func(string) bool { return true })
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, IsDir(dir), test.ShouldBeTrue)
	test.That(t, IsDir(filepath.Join(dir, "a.png")), test.ShouldBeFalse)
	test.That(t, BaseNoExt("/x/FF_CA0001_20200101_010203_004_0000256.bin"), test.ShouldEqual, "FF_CA0001_20200101_010203_004_0000256")
}

func TestMod(t *testing.T) {
	test.That(t, Mod(5, 3), test.ShouldEqual, 2)
	test.That(t, Mod(-1, 300), test.ShouldEqual, 299)
	test.That(t, Mod(-301, 300), test.ShouldEqual, 299)
	test.That(t, Mod(7, 0), test.ShouldEqual, 0)
	test.That(t, CeilDiv(300, 256), test.ShouldEqual, 2)
	test.That(t, CeilDiv(256, 256), test.ShouldEqual, 1)
	test.That(t, CeilDiv(0, 256), test.ShouldEqual, 0)
}
