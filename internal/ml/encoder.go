package ml

import (
	"errors"
	"fmt"
	"image"
	"io"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/rumenyi/agroassist/pkg/models"
)

// ImageSize is the fixed spatial dimension the disease classifier was trained on.
const ImageSize = 300

// Sentinel errors for feature encoding failures.
var (
	ErrDecode            = errors.New("image decode failed")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// EncodeImage decodes image bytes, resizes to ImageSize×ImageSize RGB, and
// flattens to a single-sample feature vector in row-major RGB order. Pixel
// values stay in [0, 255] to match the trained input scale.
func EncodeImage(r io.Reader) ([]float64, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	resized := image.NewRGBA(image.Rect(0, 0, ImageSize, ImageSize))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	features := make([]float64, 0, ImageSize*ImageSize*3)
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			off := resized.PixOffset(x, y)
			// RGBA stride is 4; the alpha channel is dropped.
			features = append(features,
				float64(resized.Pix[off]),
				float64(resized.Pix[off+1]),
				float64(resized.Pix[off+2]),
			)
		}
	}
	return features, nil
}

// EncodeCrop produces the crop model's feature vector. The field order is fixed
// by the trained model: N, P, K, temperature, humidity, pH, rainfall.
func EncodeCrop(in models.CropInput) []float64 {
	return []float64{
		in.Nitrogen,
		in.Phosphorus,
		in.Potassium,
		in.Temperature,
		in.Humidity,
		in.PH,
		in.Rainfall,
	}
}

// EncodeFertilizer produces the fertilizer model's feature vector. The field
// order is fixed by the trained model: temperature, humidity, moisture, soil
// index, crop index, N, K, P. Categorical names resolve through the static
// tables with default index 0 for unrecognized values.
func EncodeFertilizer(in models.FertilizerInput, soils, crops *NameIndex) []float64 {
	return []float64{
		in.Temperature,
		in.Humidity,
		in.Moisture,
		float64(soils.Index(in.SoilType)),
		float64(crops.Index(in.Crop)),
		in.Nitrogen,
		in.Potassium,
		in.Phosphorus,
	}
}
