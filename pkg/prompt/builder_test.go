package prompt

import (
	"strings"
	"testing"

	"github.com/rumenyi/agroassist/pkg/models"
)

func TestDiagnostic_Diseased(t *testing.T) {
	b := Builder{}
	p := b.Diagnostic("Late Blight", 0.874, false)

	if !strings.Contains(p, "'Late Blight'") {
		t.Errorf("prompt should name the disease: %q", p)
	}
	if !strings.Contains(p, "87.40%") {
		t.Errorf("prompt should carry the confidence percentage: %q", p)
	}
	if !strings.Contains(p, "traitements") {
		t.Errorf("diseased prompt should ask for treatments: %q", p)
	}
}

func TestDiagnostic_Healthy(t *testing.T) {
	b := Builder{}
	p := b.Diagnostic("Healthy", 0.95, true)

	if !strings.Contains(p, "saine") {
		t.Errorf("healthy prompt should mention the plant is healthy: %q", p)
	}
	if strings.Contains(p, "traitements") {
		t.Errorf("healthy prompt should not ask for treatments: %q", p)
	}
}

func TestCrop_EmbedsReadingsAndPrediction(t *testing.T) {
	b := Builder{Language: "français"}
	in := models.CropInput{
		Nitrogen: 90, Phosphorus: 42, Potassium: 43,
		Temperature: 20.8, Humidity: 82, PH: 6.5, Rainfall: 202.9,
	}
	p := b.Crop(in, "rice")

	for _, want := range []string{"90", "42", "43", "20.8", "82", "6.5", "202.9", "'rice'", "français"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q: %q", want, p)
		}
	}
}

func TestFertilizer_EmbedsContext(t *testing.T) {
	b := Builder{}
	in := models.FertilizerInput{
		Temperature: 26, Humidity: 52, Moisture: 38,
		Nitrogen: 37, Phosphorus: 0, Potassium: 9,
		SoilType: "Loamy", Crop: "Maize",
	}
	p := b.Fertilizer(in, "Urea")

	for _, want := range []string{"Maize", "Loamy", "'Urea'", "26", "52", "38", "37", "9"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q: %q", want, p)
		}
	}
}

func TestLanguageDefault(t *testing.T) {
	b := Builder{}
	p := b.Crop(models.CropInput{}, "maize")
	if !strings.Contains(p, "français") {
		t.Errorf("empty language should default to français: %q", p)
	}

	b = Builder{Language: "kirundi"}
	p = b.Crop(models.CropInput{}, "maize")
	if !strings.Contains(p, "kirundi") {
		t.Errorf("configured language should be used: %q", p)
	}
}
