// Package pricing regroupe les règles de prix: variantes au poids, livraison, taxe.
package pricing

import (
	"strings"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/models"

	"github.com/shopspring/decimal"
)

// VariantTolerance est l'écart maximal admis entre le prix stocké et le prix proportionnel
const VariantTolerance = 1.0

// ProportionalPrice calcule round(base × grams / 1000)
func ProportionalPrice(base float64, grams int) float64 {
	return decimal.NewFromFloat(base).
		Mul(decimal.NewFromInt(int64(grams))).
		Div(decimal.NewFromInt(models.BaseWeightGrams)).
		Round(0).
		InexactFloat64()
}

// ValidateWeightOptions vérifie que chaque variante respecte le prix proportionnel
func ValidateWeightOptions(base float64, options []models.WeightOption) error {
	if base <= 0 {
		return apperr.New(apperr.Validation, "le prix de base doit être positif")
	}
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		label := strings.ToLower(strings.TrimSpace(opt.Label))
		if label == "" {
			return apperr.New(apperr.Validation, "variante sans libellé")
		}
		if seen[label] {
			return apperr.New(apperr.Validation, "variante %q en double", opt.Label)
		}
		seen[label] = true

		if opt.Grams <= 0 {
			return apperr.New(apperr.Validation, "poids invalide pour la variante %q", opt.Label)
		}
		expected := ProportionalPrice(base, opt.Grams)
		if opt.Grams == models.BaseWeightGrams {
			expected = base
		}
		diff := decimal.NewFromFloat(opt.Price).Sub(decimal.NewFromFloat(expected)).Abs()
		if diff.GreaterThan(decimal.NewFromFloat(VariantTolerance)) {
			return apperr.New(apperr.Validation,
				"prix de la variante %q incohérent: %.2f au lieu de %.0f", opt.Label, opt.Price, expected)
		}
	}
	return nil
}

// BuildWeightOptions dérive les prix des variantes depuis le prix de base
func BuildWeightOptions(base float64, grams ...int) []models.WeightOption {
	options := make([]models.WeightOption, 0, len(grams))
	for _, g := range grams {
		options = append(options, models.WeightOption{
			Label: WeightLabel(g),
			Grams: g,
			Price: ProportionalPrice(base, g),
		})
	}
	return options
}

func WeightLabel(grams int) string {
	if grams >= 1000 && grams%1000 == 0 {
		return decimal.NewFromInt(int64(grams / 1000)).String() + "kg"
	}
	return decimal.NewFromInt(int64(grams)).String() + "g"
}

// LineTotal retourne price × quantity arrondi au centime
func LineTotal(price float64, quantity int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(2).InexactFloat64()
}

// ToMinorUnits convertit un montant en centimes pour la passerelle de paiement
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromMinorUnits(amount int64) float64 {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).InexactFloat64()
}
