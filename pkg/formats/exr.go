package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/x448/float16"
)

// EXR format errors.
var (
	ErrInvalidEXRMagic         = errors.New("invalid EXR magic")
	ErrUnsupportedEXRFeature   = errors.New("unsupported EXR feature")
	ErrTruncatedEXRData        = errors.New("truncated EXR data")
	ErrInvalidEXRDimensions    = errors.New("invalid EXR dimensions")
	ErrUnsupportedEXRPixelType = errors.New("unsupported EXR pixel type")
)

const (
	exrMagic   = 20000630
	exrVersion = 2
)

// EXRPixelType is the storage type of an EXR channel.
type EXRPixelType int32

// EXR pixel types.
const (
	EXRUint  EXRPixelType = 0
	EXRHalf  EXRPixelType = 1
	EXRFloat EXRPixelType = 2
)

// String returns the pixel type name.
func (t EXRPixelType) String() string {
	switch t {
	case EXRUint:
		return "uint"
	case EXRHalf:
		return "half"
	case EXRFloat:
		return "float"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(t))
	}
}

// ParseEXRPixelType converts "half" or "float" to a pixel type.
func ParseEXRPixelType(s string) (EXRPixelType, error) {
	switch s {
	case "half":
		return EXRHalf, nil
	case "float", "":
		return EXRFloat, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedEXRPixelType, s)
}

func (t EXRPixelType) size() int {
	if t == EXRHalf {
		return 2
	}
	return 4
}

// exrChannels are the RGBA channels in the alphabetical order EXR requires.
var exrChannels = [4]struct {
	name   string
	offset int
}{{"A", 3}, {"B", 2}, {"G", 1}, {"R", 0}}

// EXRImage is a decoded RGBA EXR image. Pixels holds Width*Height*4
// interleaved RGBA values, top row first.
type EXRImage struct {
	Width     int
	Height    int
	PixelType EXRPixelType
	Pixels    []float32
}

// At returns the RGBA value at (x, y), with y = 0 the top row.
func (img *EXRImage) At(x, y int) [4]float32 {
	i := (y*img.Width + x) * 4
	return [4]float32{img.Pixels[i], img.Pixels[i+1], img.Pixels[i+2], img.Pixels[i+3]}
}

// WriteEXR writes an uncompressed scanline RGBA image. pixels holds
// width*height*4 interleaved values with the top row first.
func WriteEXR(w io.Writer, width, height int, pixels []float32, pt EXRPixelType) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidEXRDimensions, width, height)
	}
	if len(pixels) != width*height*4 {
		return fmt.Errorf("%w: %d values for %dx%d RGBA", ErrInvalidEXRDimensions, len(pixels), width, height)
	}
	if pt != EXRHalf && pt != EXRFloat {
		return fmt.Errorf("%w: %s", ErrUnsupportedEXRPixelType, pt)
	}

	header := new(bytes.Buffer)
	le := binary.LittleEndian
	binary.Write(header, le, uint32(exrMagic))
	binary.Write(header, le, uint32(exrVersion))

	chlist := new(bytes.Buffer)
	for _, ch := range exrChannels {
		chlist.WriteString(ch.name)
		chlist.WriteByte(0)
		binary.Write(chlist, le, int32(pt))
		chlist.Write([]byte{0, 0, 0, 0}) // pLinear + reserved
		binary.Write(chlist, le, int32(1))
		binary.Write(chlist, le, int32(1))
	}
	chlist.WriteByte(0)

	box := make([]byte, 16)
	le.PutUint32(box[8:], uint32(width-1))
	le.PutUint32(box[12:], uint32(height-1))

	writeEXRAttr(header, "channels", "chlist", chlist.Bytes())
	writeEXRAttr(header, "compression", "compression", []byte{0})
	writeEXRAttr(header, "dataWindow", "box2i", box)
	writeEXRAttr(header, "displayWindow", "box2i", box)
	writeEXRAttr(header, "lineOrder", "lineOrder", []byte{0})
	writeEXRAttr(header, "pixelAspectRatio", "float", exrFloat(1))
	writeEXRAttr(header, "screenWindowCenter", "v2f", append(exrFloat(0), exrFloat(0)...))
	writeEXRAttr(header, "screenWindowWidth", "float", exrFloat(1))
	header.WriteByte(0)

	lineSize := width * 4 * pt.size()
	blockSize := int64(8 + lineSize)
	offset := int64(header.Len()) + int64(height)*8

	table := make([]byte, height*8)
	for y := 0; y < height; y++ {
		le.PutUint64(table[y*8:], uint64(offset+int64(y)*blockSize))
	}

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(table); err != nil {
		return err
	}

	block := make([]byte, blockSize)
	for y := 0; y < height; y++ {
		le.PutUint32(block[0:], uint32(y))
		le.PutUint32(block[4:], uint32(lineSize))
		pos := 8
		for _, ch := range exrChannels {
			for x := 0; x < width; x++ {
				v := pixels[(y*width+x)*4+ch.offset]
				if pt == EXRHalf {
					le.PutUint16(block[pos:], float16.Fromfloat32(v).Bits())
					pos += 2
				} else {
					le.PutUint32(block[pos:], math.Float32bits(v))
					pos += 4
				}
			}
		}
		if _, err := w.Write(block); err != nil {
			return err
		}
	}
	return nil
}

// WriteEXRFile writes an EXR image to disk.
func WriteEXRFile(path string, width, height int, pixels []float32, pt EXRPixelType) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating EXR file: %w", err)
	}
	if err := WriteEXR(f, width, height, pixels, pt); err != nil {
		f.Close()
		return fmt.Errorf("writing EXR file: %w", err)
	}
	return f.Close()
}

func writeEXRAttr(buf *bytes.Buffer, name, typ string, value []byte) {
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.WriteString(typ)
	buf.WriteByte(0)
	binary.Write(buf, binary.LittleEndian, int32(len(value)))
	buf.Write(value)
}

func exrFloat(f float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
	return b
}

// exrChannel is a channel description read from a header.
type exrChannel struct {
	name string
	typ  EXRPixelType
}

// ParseEXR decodes an uncompressed scanline EXR image with HALF or FLOAT
// channels. Channels other than R, G, B and A are skipped; missing colour
// channels read as 0 and a missing alpha channel as 1.
func ParseEXR(data []byte) (*EXRImage, error) {
	if len(data) < 8 {
		return nil, ErrTruncatedEXRData
	}
	le := binary.LittleEndian
	if le.Uint32(data[0:4]) != exrMagic {
		return nil, ErrInvalidEXRMagic
	}
	if flags := le.Uint32(data[4:8]); flags&0xff != exrVersion || flags&^0xff != 0 {
		return nil, fmt.Errorf("%w: version field 0x%x", ErrUnsupportedEXRFeature, flags)
	}

	pos := 8
	var channels []exrChannel
	var window [4]int32
	haveWindow := false
	for {
		name, err := exrString(data, &pos)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		if _, err := exrString(data, &pos); err != nil {
			return nil, err
		}
		if pos+4 > len(data) {
			return nil, ErrTruncatedEXRData
		}
		size := int(le.Uint32(data[pos:]))
		pos += 4
		if size < 0 || pos+size > len(data) {
			return nil, fmt.Errorf("%w: attribute %s", ErrTruncatedEXRData, name)
		}
		value := data[pos : pos+size]
		pos += size

		switch name {
		case "channels":
			channels, err = parseEXRChannels(value)
			if err != nil {
				return nil, err
			}
		case "compression":
			if len(value) != 1 || value[0] != 0 {
				return nil, fmt.Errorf("%w: compressed data", ErrUnsupportedEXRFeature)
			}
		case "dataWindow":
			if len(value) != 16 {
				return nil, fmt.Errorf("%w: dataWindow", ErrTruncatedEXRData)
			}
			for i := range window {
				window[i] = int32(le.Uint32(value[i*4:]))
			}
			haveWindow = true
		}
	}
	if !haveWindow || len(channels) == 0 {
		return nil, fmt.Errorf("%w: missing channels or dataWindow", ErrTruncatedEXRData)
	}

	width := int(window[2]) - int(window[0]) + 1
	height := int(window[3]) - int(window[1]) + 1
	pixelSize := 0
	for _, ch := range channels {
		pixelSize += ch.typ.size()
	}
	// Every line needs an offset and a block, so the file bounds both sides.
	if width <= 0 || height <= 0 || width > len(data)/pixelSize || height > len(data)/8 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidEXRDimensions, width, height)
	}
	if int64(height)*int64(16+width*pixelSize) > int64(len(data)) {
		return nil, fmt.Errorf("%w: %dx%d image", ErrTruncatedEXRData, width, height)
	}

	img := &EXRImage{
		Width:     width,
		Height:    height,
		PixelType: channels[0].typ,
		Pixels:    make([]float32, width*height*4),
	}
	for i := 3; i < len(img.Pixels); i += 4 {
		img.Pixels[i] = 1
	}

	if pos+height*8 > len(data) {
		return nil, fmt.Errorf("%w: offset table", ErrTruncatedEXRData)
	}
	for line := 0; line < height; line++ {
		off64 := le.Uint64(data[pos+line*8:])
		if off64 > uint64(len(data)-8) {
			return nil, fmt.Errorf("%w: block %d", ErrTruncatedEXRData, line)
		}
		off := int(off64)
		y := int(int32(le.Uint32(data[off:]))) - int(window[1])
		size := int(le.Uint32(data[off+4:]))
		if y < 0 || y >= height || off+8+size > len(data) {
			return nil, fmt.Errorf("%w: block %d", ErrTruncatedEXRData, line)
		}
		if err := decodeEXRLine(img, y, channels, data[off+8:off+8+size]); err != nil {
			return nil, fmt.Errorf("block %d: %w", line, err)
		}
	}
	return img, nil
}

// ParseEXRFile parses an EXR file from disk.
func ParseEXRFile(path string) (*EXRImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading EXR file: %w", err)
	}
	return ParseEXR(data)
}

func parseEXRChannels(value []byte) ([]exrChannel, error) {
	var out []exrChannel
	pos := 0
	for {
		name, err := exrString(value, &pos)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return out, nil
		}
		if pos+16 > len(value) {
			return nil, fmt.Errorf("%w: channel %s", ErrTruncatedEXRData, name)
		}
		typ := EXRPixelType(binary.LittleEndian.Uint32(value[pos:]))
		xs := binary.LittleEndian.Uint32(value[pos+8:])
		ys := binary.LittleEndian.Uint32(value[pos+12:])
		pos += 16
		if typ != EXRHalf && typ != EXRFloat {
			return nil, fmt.Errorf("%w: channel %s is %s", ErrUnsupportedEXRPixelType, name, typ)
		}
		if xs != 1 || ys != 1 {
			return nil, fmt.Errorf("%w: subsampled channel %s", ErrUnsupportedEXRFeature, name)
		}
		out = append(out, exrChannel{name: name, typ: typ})
	}
}

func decodeEXRLine(img *EXRImage, y int, channels []exrChannel, line []byte) error {
	le := binary.LittleEndian
	pos := 0
	for _, ch := range channels {
		need := img.Width * ch.typ.size()
		if pos+need > len(line) {
			return ErrTruncatedEXRData
		}
		offset := -1
		switch ch.name {
		case "R":
			offset = 0
		case "G":
			offset = 1
		case "B":
			offset = 2
		case "A":
			offset = 3
		}
		if offset >= 0 {
			for x := 0; x < img.Width; x++ {
				var v float32
				if ch.typ == EXRHalf {
					v = float16.Frombits(le.Uint16(line[pos+x*2:])).Float32()
				} else {
					v = math.Float32frombits(le.Uint32(line[pos+x*4:]))
				}
				img.Pixels[(y*img.Width+x)*4+offset] = v
			}
		}
		pos += need
	}
	return nil
}

func exrString(data []byte, pos *int) (string, error) {
	end := bytes.IndexByte(data[*pos:], 0)
	if end < 0 {
		return "", ErrTruncatedEXRData
	}
	s := string(data[*pos : *pos+end])
	*pos += end + 1
	return s, nil
}
