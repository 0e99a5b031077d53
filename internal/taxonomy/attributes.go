package taxonomy

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/costdb/internal/model"
)

const (
	mmPerInch   = 25.4
	metersPerFt = 0.3048
)

// Units must end at a word boundary so "100mm" is not also read as a
// 100 m length.
var (
	diameterRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(mm|inches|inch|in)\b`)
	lengthRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(meters|meter|m|ft)\b`)
)

// ExtractAttributes pulls diameter, length and material from normalized text.
func (t *Taxonomy) ExtractAttributes(text string) model.Attributes {
	var attrs model.Attributes

	if m := diameterRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if m[2] != "mm" {
				v *= mmPerInch
			}
			v = round2(v)
			attrs.DiameterMM = &v
		}
	}

	if m := lengthRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if m[2] == "ft" {
				v *= metersPerFt
			}
			v = round2(v)
			attrs.LengthM = &v
		}
	}

	for _, mat := range t.Materials {
		if strings.Contains(text, mat) {
			attrs.Material = mat
			break
		}
	}

	return attrs
}

// Category returns the first rule whose keyword occurs in text, or the
// default category.
func (t *Taxonomy) Category(text string) string {
	lowered := strings.ToLower(text)
	for _, rule := range t.Categories {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Name
			}
		}
	}
	return t.DefaultCategory
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
