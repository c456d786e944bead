package media

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xwebp "golang.org/x/image/webp"
)

const webpQuality = 80

// Normalizer converts stored uploads to the canonical WebP format.
type Normalizer struct {
	quality float32
}

// NewNormalizer returns a normalizer encoding lossy WebP at a fixed quality.
func NewNormalizer() *Normalizer {
	return &Normalizer{quality: webpQuality}
}

// Normalize ensures the file at path is WebP. It returns the final path, which
// equals path when the input already was WebP. The original file is left in
// place; the caller removes it when the returned path differs.
func (n *Normalizer) Normalize(path, declared string) (string, error) {
	format, err := resolveFormat(path, declared)
	if err != nil {
		return "", err
	}
	if format == formatWebP {
		if err := verifyWebP(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return n.convert(path)
}

func verifyWebP(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ioError(err, "open upload")
	}
	defer f.Close()
	if _, err := xwebp.DecodeConfig(bufio.NewReader(f)); err != nil {
		return ioError(err, "decode webp upload")
	}
	return nil
}

func (n *Normalizer) convert(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", ioError(err, "open upload")
	}
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	src.Close()
	if err != nil {
		return "", ioError(err, "decode upload")
	}

	dir := filepath.Dir(path)
	target := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+CanonicalExt)

	tmp, err := os.CreateTemp(dir, ".convert-*")
	if err != nil {
		return "", ioError(err, "create conversion file")
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	if err := webp.Encode(w, img, &webp.Options{Quality: n.quality}); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", ioError(err, "encode webp")
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", ioError(err, "write webp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", ioError(err, "close webp")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", ioError(err, "chmod webp")
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", ioError(err, "publish webp")
	}
	return target, nil
}
