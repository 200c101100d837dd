// Package prompt builds the natural-language prompts sent to the generative
// text service.
package prompt

import (
	"fmt"

	"github.com/rumenyi/agroassist/pkg/models"
)

// Builder constructs user-facing prompts in the configured language.
// All methods are pure functions with no side effects.
type Builder struct {
	// Language is the target language for generated text, e.g. "français".
	Language string
}

// Diagnostic returns the prompt for an image diagnosis. The wording branches
// on whether the plant was classified healthy.
func (b Builder) Diagnostic(diseaseName string, confidence float64, healthy bool) string {
	p := fmt.Sprintf(
		"Une plante a été analysée via une image. Le modèle a détecté la maladie '%s' "+
			"avec une confiance de %.2f%%. ",
		diseaseName, confidence*100)

	if healthy {
		p += fmt.Sprintf(
			"La plante semble saine. Fournis un conseil pour maintenir sa santé. "+
				"Formule la réponse en %s.", b.language())
	} else {
		p += fmt.Sprintf(
			"Donne une explication brève sur cette maladie, ses symptômes, et recommande "+
				"des traitements appropriés. Formule la réponse en %s clair et simple.", b.language())
	}
	return p
}

// Crop returns the prompt for a crop recommendation.
func (b Builder) Crop(in models.CropInput, predictedCrop string) string {
	return fmt.Sprintf(
		"L'utilisateur a fourni les données suivantes concernant les conditions du sol et du climat : "+
			"Azote (N) = %g, Phosphore (P) = %g, Potassium (K) = %g, Température = %g°C, "+
			"Humidité = %g%%, pH = %g, Pluviométrie = %g mm. "+
			"Sur cette base, le modèle a prédit que la culture la plus adaptée est : '%s'. "+
			"Expliquez pourquoi cette culture est un bon choix pour ces conditions, en %s simple.",
		in.Nitrogen, in.Phosphorus, in.Potassium, in.Temperature,
		in.Humidity, in.PH, in.Rainfall,
		predictedCrop, b.language())
}

// Fertilizer returns the prompt for a fertilizer recommendation.
func (b Builder) Fertilizer(in models.FertilizerInput, predictedFertilizer string) string {
	return fmt.Sprintf(
		"L'utilisateur cultive %s sur un sol de type %s. Les conditions sont les suivantes : "+
			"température = %g°C, humidité = %g%%, humidité du sol = %g%%, azote (N) = %g, "+
			"phosphore (P) = %g, potassium (K) = %g. Le modèle a recommandé le fertilisant '%s'. "+
			"Explique pourquoi ce choix est adapté aux conditions données, en %s simple.",
		in.Crop, in.SoilType,
		in.Temperature, in.Humidity, in.Moisture, in.Nitrogen,
		in.Phosphorus, in.Potassium,
		predictedFertilizer, b.language())
}

func (b Builder) language() string {
	if b.Language == "" {
		return "français"
	}
	return b.Language
}
