package main

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// writeTestImage saves a two-tone image: left half red, right half blue.
func writeTestImage(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{255, 0, 0, 255})
	blue := imaging.New(width-width/2, height, color.NRGBA{0, 0, 255, 255})
	img = imaging.Paste(img, blue, image.Pt(width/2, 0))

	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, imaging.Save(img, p))
	return p
}

func openTestImage(t *testing.T, p string) image.Image {
	t.Helper()
	img, err := imaging.Open(p)
	require.NoError(t, err)
	return img
}
