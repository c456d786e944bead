package controllers

import (
	"io/fs"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/miuvuu/miuvuu-backend/internal/media"
)

// MediaFiles serves the storage root read-only under prefix. Directories are
// never listed, dot-files are hidden and symlinks leading out of the root are
// not followed.
func MediaFiles(root, prefix string) http.Handler {
	files := http.FileServer(fileOnlyFS{fs: http.Dir(root), root: root})
	return http.StripPrefix(strings.TrimSuffix(prefix, "/"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	}))
}

type fileOnlyFS struct {
	fs   http.FileSystem
	root string
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") {
			return nil, fs.ErrNotExist
		}
	}
	full := filepath.Join(f.root, filepath.FromSlash(path.Clean("/"+name)))
	if ok, err := media.Confined(f.root, full); err != nil || !ok {
		return nil, fs.ErrNotExist
	}
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}
