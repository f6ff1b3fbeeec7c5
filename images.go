package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"fitcrop/crop"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type FileInfo struct {
	Name       string    `json:"name"`
	IsDir      bool      `json:"is_dir"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	URL        string    `json:"url"`
	Image      ImageInfo `json:"image"`
}

type Directory struct {
	Name  string     `json:"name"`
	Files []FileInfo `json:"files"`
}

func isImage(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

// walkImages lists the images under rootPath, skipping skipDir (the output
// directory) so cropped results are not offered for cropping again.
func walkImages(ctx context.Context, rootPath, skipDir string) (Directory, error) {
	var files []FileInfo

	if err := filepath.WalkDir(rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir != "" && p == skipDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isImage(p) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}
		relPath, err := filepath.Rel(rootPath, p)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		files = append(files, FileInfo{
			Name:       filepath.ToSlash(relPath),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	}); err != nil {
		return Directory{}, err
	}

	for i := range files {
		w, h, err := readImageDimensions(filepath.Join(rootPath, filepath.FromSlash(files[i].Name)))
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("filename", files[i].Name).Msg("cannot read image dimensions")
			continue
		}
		files[i].Image = ImageInfo{
			Width:  w,
			Height: h,
		}
	}

	return Directory{
		Name:  filepath.Base(rootPath),
		Files: files,
	}, nil
}

// resolvePath maps a slash-separated name inside root to a file path. Names
// cannot escape root.
func resolvePath(root, name string) (string, error) {
	if name == "" {
		return "", errors.New("empty file name")
	}
	clean := path.Clean("/" + filepath.ToSlash(name))
	if clean == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// fileMetadata reads intrinsic image sizes from files below Root.
type fileMetadata struct {
	Root string
}

// IntrinsicSize returns the displayed size of the image, with the EXIF
// orientation of JPEGs applied.
func (m fileMetadata) IntrinsicSize(ctx context.Context, handle string) (crop.Size, error) {
	p, err := resolvePath(m.Root, handle)
	if err != nil {
		return crop.Size{}, err
	}
	if err := ctx.Err(); err != nil {
		return crop.Size{}, err
	}

	w, h, err := readImageDimensions(p)
	if err != nil {
		return crop.Size{}, err
	}
	return crop.Size{Width: float64(w), Height: float64(h)}, nil
}

// readImageDimensions reads the size from the image header without decoding
// pixels. JPEG sizes are swapped when the EXIF orientation rotates the image
// by a quarter turn, matching imaging.AutoOrientation.
func readImageDimensions(filePath string) (width, height int, err error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jpg", ".jpeg":
		if w, h, err := readJPEGDimensions(filePath); err == nil {
			return w, h, nil
		}
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func readJPEGDimensions(filePath string) (width, height int, err error) {
	orientation, seenAPP1 := 0, false
	file, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf [2]byte

	// SOI marker
	if _, err := io.ReadFull(file, buf[:]); err != nil {
		return 0, 0, fmt.Errorf("failed to read SOI marker: %w", err)
	}
	if buf[0] != 0xFF || buf[1] != 0xD8 {
		return 0, 0, errors.New("not a valid JPEG file")
	}

	for {
		if _, err := io.ReadFull(file, buf[:]); err != nil {
			return 0, 0, err
		}
		if buf[0] != 0xFF {
			return 0, 0, errors.New("invalid JPEG format")
		}

		// Skip fill bytes
		for buf[1] == 0xFF {
			if _, err := io.ReadFull(file, buf[1:2]); err != nil {
				return 0, 0, err
			}
		}
		marker := buf[1]

		if _, err := io.ReadFull(file, buf[:]); err != nil {
			return 0, 0, err
		}
		length := int(binary.BigEndian.Uint16(buf[:]))
		if length < 2 {
			return 0, 0, errors.New("invalid JPEG segment length")
		}

		// SOF0..SOF3 carry the frame dimensions
		if marker >= 0xC0 && marker <= 0xC3 {
			segment := make([]byte, length-2)
			if _, err := io.ReadFull(file, segment); err != nil {
				return 0, 0, err
			}
			if len(segment) < 5 {
				return 0, 0, errors.New("short SOF segment")
			}
			height = int(binary.BigEndian.Uint16(segment[1:3]))
			width = int(binary.BigEndian.Uint16(segment[3:5]))
			// 5..8 are the transposed orientations
			if orientation >= 5 && orientation <= 8 {
				width, height = height, width
			}
			return width, height, nil
		}

		// only the first APP1 segment is read for orientation
		if marker == 0xE1 && !seenAPP1 {
			seenAPP1 = true
			segment := make([]byte, length-2)
			if _, err := io.ReadFull(file, segment); err != nil {
				return 0, 0, err
			}
			orientation = exifOrientation(segment)
			continue
		}

		if _, err := file.Seek(int64(length-2), io.SeekCurrent); err != nil {
			return 0, 0, err
		}
	}
}

// exifOrientation returns the orientation tag of an APP1 segment, or 0 if the
// segment has none.
func exifOrientation(segment []byte) int {
	const orientationTag = 0x0112

	if len(segment) < 14 || string(segment[:6]) != "Exif\x00\x00" {
		return 0
	}
	tiff := segment[6:]

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0
	}

	offset := int(order.Uint32(tiff[4:8]))
	if offset < 8 || offset > len(tiff)-2 {
		return 0
	}
	count := int(order.Uint16(tiff[offset:]))
	for i := 0; i < count; i++ {
		entry := offset + 2 + i*12
		if entry+12 > len(tiff) {
			return 0
		}
		if order.Uint16(tiff[entry:]) != orientationTag {
			continue
		}
		if v := int(order.Uint16(tiff[entry+8:])); v >= 1 && v <= 8 {
			return v
		}
		return 0
	}
	return 0
}
