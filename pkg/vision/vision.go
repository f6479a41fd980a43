package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// edgeThreshold is the grayscale step between neighbouring pixels that
	// counts as an edge.
	edgeThreshold = 30

	dominantColorCount = 10
)

// SupportedExtensions lists the file extensions Analyzer can read.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

// ImageInfo describes a decoded image.
type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Mode   string `json:"mode"`
}

// ColorCount is one RGB value and how many pixels carry it.
type ColorCount struct {
	Count int      `json:"count"`
	RGB   [3]uint8 `json:"rgb"`
}

type ColorAnalysis struct {
	TotalUniqueColors int          `json:"total_unique_colors"`
	DominantColors    []ColorCount `json:"dominant_colors"`
	Analysis          string       `json:"analysis"`
}

// MolecularFeatures guesses which PyMOL representations are on screen from
// the density of grayscale edges. Spheres and labels are never detected.
type MolecularFeatures struct {
	SpheresDetected bool    `json:"spheres_detected"`
	SticksDetected  bool    `json:"sticks_detected"`
	SurfaceDetected bool    `json:"surface_detected"`
	CartoonDetected bool    `json:"cartoon_detected"`
	LabelsDetected  bool    `json:"labels_detected"`
	EdgeRatio       float64 `json:"edge_ratio"`
	Analysis        string  `json:"analysis"`
}

type Analysis struct {
	ImageInfo         ImageInfo         `json:"image_info"`
	ColorAnalysis     ColorAnalysis     `json:"color_analysis"`
	MolecularFeatures MolecularFeatures `json:"molecular_features"`
	ImagePath         string            `json:"image_path"`
}

// Annotation is a text label drawn with its top-left corner at X, Y.
type Annotation struct {
	X     int
	Y     int
	Text  string
	Color string
}

type AnnotateResult struct {
	AnnotatedImagePath string `json:"annotated_image_path"`
	AnnotationsAdded   int    `json:"annotations_added"`
}

// Summary is the size and mode of one compared image.
type Summary struct {
	Size [2]int `json:"size"`
	Mode string `json:"mode"`
}

type Comparison struct {
	SizeSame bool `json:"size_same"`
	ModeSame bool `json:"mode_same"`

	// SimilarityPercentage is a float64 in [0, 100], or a note explaining
	// why it could not be computed.
	SimilarityPercentage any     `json:"similarity_percentage"`
	Image1Info           Summary `json:"image1_info"`
	Image2Info           Summary `json:"image2_info"`
}

type FileInfo struct {
	Size     [2]int `json:"size"`
	Format   string `json:"format"`
	Mode     string `json:"mode"`
	FileSize int64  `json:"file_size"`
}

// Analyze decodes the image at path and reports size, colors and features.
func Analyze(path string) (*Analysis, error) {
	img, format, err := load(path)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	return &Analysis{
		ImageInfo: ImageInfo{
			Width:  b.Dx(),
			Height: b.Dy(),
			Format: strings.ToUpper(format),
			Mode:   modeOf(img),
		},
		ColorAnalysis:     analyzeColors(img),
		MolecularFeatures: detectFeatures(img),
		ImagePath:         path,
	}, nil
}

// Info reports size, format, mode and file size without analysis.
func Info(path string) (*FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return nil, err
	}

	img, format, err := load(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &FileInfo{
		Size:     [2]int{b.Dx(), b.Dy()},
		Format:   strings.ToUpper(format),
		Mode:     modeOf(img),
		FileSize: st.Size(),
	}, nil
}

// Annotate draws each annotation onto a copy of the image and writes it next
// to the source as <stem>_annotated<ext>, in the source's format.
func Annotate(path string, annotations []Annotation) (*AnnotateResult, error) {
	img, format, err := load(path)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)

	face := basicfont.Face7x13
	for _, a := range annotations {
		col, err := ParseColor(a.Color)
		if err != nil {
			return nil, err
		}
		d := &font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  fixed.P(canvas.Bounds().Min.X+a.X, canvas.Bounds().Min.Y+a.Y+face.Ascent),
		}
		d.DrawString(a.Text)
	}

	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + "_annotated" + ext
	if err := save(out, canvas, format); err != nil {
		return nil, err
	}

	return &AnnotateResult{AnnotatedImagePath: out, AnnotationsAdded: len(annotations)}, nil
}

// Compare reports whether two images match in size and mode and, when both
// do, how similar their pixels are.
func Compare(path1, path2 string) (*Comparison, error) {
	img1, _, err := load(path1)
	if err != nil {
		return nil, err
	}
	img2, _, err := load(path2)
	if err != nil {
		return nil, err
	}

	b1, b2 := img1.Bounds(), img2.Bounds()
	mode1, mode2 := modeOf(img1), modeOf(img2)
	c := &Comparison{
		SizeSame:   b1.Dx() == b2.Dx() && b1.Dy() == b2.Dy(),
		ModeSame:   mode1 == mode2,
		Image1Info: Summary{Size: [2]int{b1.Dx(), b1.Dy()}, Mode: mode1},
		Image2Info: Summary{Size: [2]int{b2.Dx(), b2.Dy()}, Mode: mode2},
	}

	if c.SizeSame && c.ModeSame {
		c.SimilarityPercentage = similarity(img1, img2)
	} else {
		c.SimilarityPercentage = "Cannot calculate - different sizes or formats"
	}
	return c, nil
}

// similarity is 100 minus the mean absolute RGB channel difference scaled to
// percent, floored at zero. Both images must have the same size.
func similarity(a, b image.Image) float64 {
	ba, bb := a.Bounds(), b.Bounds()
	var total, samples float64
	for y := 0; y < ba.Dy(); y++ {
		for x := 0; x < ba.Dx(); x++ {
			p := rgb(a.At(ba.Min.X+x, ba.Min.Y+y))
			q := rgb(b.At(bb.Min.X+x, bb.Min.Y+y))
			for i := 0; i < 3; i++ {
				d := int(p[i]) - int(q[i])
				if d < 0 {
					d = -d
				}
				total += float64(d)
			}
			samples += 3
		}
	}
	if samples == 0 {
		return 100
	}
	avg := total / samples
	return max(0, 100-avg/255*100)
}

func analyzeColors(img image.Image) ColorAnalysis {
	counts := make(map[[3]uint8]int)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			counts[rgb(img.At(x, y))]++
		}
	}

	colors := make([]ColorCount, 0, len(counts))
	for c, n := range counts {
		colors = append(colors, ColorCount{Count: n, RGB: c})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Count != colors[j].Count {
			return colors[i].Count > colors[j].Count
		}
		return packRGB(colors[i].RGB) < packRGB(colors[j].RGB)
	})

	if len(colors) == 0 {
		return ColorAnalysis{DominantColors: []ColorCount{}, Analysis: "Could not analyze colors"}
	}
	top := colors
	if len(top) > dominantColorCount {
		top = top[:dominantColorCount]
	}
	return ColorAnalysis{
		TotalUniqueColors: len(colors),
		DominantColors:    top,
		Analysis:          "Color distribution calculated successfully",
	}
}

// detectFeatures walks the grayscale pixels in row-major order and counts
// neighbours whose intensity differs by more than edgeThreshold.
func detectFeatures(img image.Image) MolecularFeatures {
	f := MolecularFeatures{Analysis: "Basic feature detection completed"}

	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return f
	}

	edges := 0
	prev := -1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := int(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			if prev >= 0 {
				d := g - prev
				if d < 0 {
					d = -d
				}
				if d > edgeThreshold {
					edges++
				}
			}
			prev = g
		}
	}

	ratio := float64(edges) / float64(total)
	f.EdgeRatio = ratio
	f.SurfaceDetected = ratio > 0.15
	f.CartoonDetected = ratio > 0.05 && ratio <= 0.15
	f.SticksDetected = ratio > 0.2
	return f
}

func load(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return nil, "", err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, format, nil
}

func save(path string, img image.Image, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch format {
	case "jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	case "gif":
		err = gif.Encode(f, img, nil)
	case "bmp":
		err = bmp.Encode(f, img)
	default:
		err = png.Encode(f, img)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// modeOf names the pixel layout the way imaging tools usually do.
func modeOf(img image.Image) string {
	switch m := img.(type) {
	case *image.Gray:
		return "L"
	case *image.Gray16:
		return "I;16"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	case *image.YCbCr:
		return "RGB"
	case interface{ Opaque() bool }:
		if m.Opaque() {
			return "RGB"
		}
		return "RGBA"
	default:
		return "RGBA"
	}
}

// rgb drops alpha from a non-premultiplied color.
func rgb(c color.Color) [3]uint8 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return [3]uint8{n.R, n.G, n.B}
}

func packRGB(c [3]uint8) uint32 {
	return uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2])
}
