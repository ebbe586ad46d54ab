package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
)

const iconSize = 32

var (
	bubble = color.NRGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff}
	dot    = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Icon draws the tray icon, a chat bubble with three dots, as PNG. On
// windows the PNG is wrapped in a single-image ICO container.
func Icon(goos string) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, drawBubble()); err != nil {
		return nil, err
	}
	if goos != "windows" {
		return buf.Bytes(), nil
	}
	return wrapICO(buf.Bytes(), iconSize)
}

func drawBubble() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	for y := 3; y < 23; y++ {
		for x := 2; x < 30; x++ {
			// cut the corners
			if (x < 4 || x > 27) && (y < 5 || y > 20) {
				continue
			}
			img.SetNRGBA(x, y, bubble)
		}
	}
	// tail under the left half
	for y := 23; y < 29; y++ {
		for x := 8; x < 8+(29-y); x++ {
			img.SetNRGBA(x, y, bubble)
		}
	}
	for _, cx := range []int{9, 16, 23} {
		for y := 11; y < 15; y++ {
			for x := cx - 2; x < cx+2; x++ {
				img.SetNRGBA(x, y, dot)
			}
		}
	}
	return img
}

type iconDir struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type iconDirEntry struct {
	Width      uint8
	Height     uint8
	Colors     uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	Offset     uint32
}

// wrapICO embeds one PNG image in an ICO file.
func wrapICO(pngData []byte, size int) ([]byte, error) {
	var buf bytes.Buffer
	dir := iconDir{Type: 1, Count: 1}
	entry := iconDirEntry{
		Width:      uint8(size),
		Height:     uint8(size),
		Planes:     1,
		BitCount:   32,
		BytesInRes: uint32(len(pngData)),
		Offset:     uint32(binary.Size(dir) + binary.Size(iconDirEntry{})),
	}
	if err := binary.Write(&buf, binary.LittleEndian, dir); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, entry); err != nil {
		return nil, err
	}
	buf.Write(pngData)
	return buf.Bytes(), nil
}
