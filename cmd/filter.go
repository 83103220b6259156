package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"newsxtract/filterspec"
)

// filterDoc is the on-disk JSON shape for --filter; it mirrors FilterSpec
// (spec.md §3) with string operators instead of the Operator type so a
// hand-written config file stays readable.
type filterDoc struct {
	Enabled           bool     `json:"enabled"`
	AllowedExtensions []string `json:"allowedExtensions"`

	MinWidth  *int `json:"minWidth"`
	MaxWidth  *int `json:"maxWidth"`
	MinHeight *int `json:"minHeight"`
	MaxHeight *int `json:"maxHeight"`

	MinFileSize *int64 `json:"minFileSize"`
	MaxFileSize *int64 `json:"maxFileSize"`

	Creditline    *predicateDoc `json:"creditline"`
	CopyrightLine *predicateDoc `json:"copyrightLine"`
	UsageType     *predicateDoc `json:"usageType"`
	RightsHolder  *predicateDoc `json:"rightsHolder"`
	Location      *predicateDoc `json:"location"`

	Move struct {
		Enabled     bool   `json:"enabled"`
		Destination string `json:"destination"`
		Layout      string `json:"layout"`
	} `json:"move"`
}

type predicateDoc struct {
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

func readFilterSpec(path string) (*filterspec.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading filter config %s: %w", path, err)
	}

	var doc filterDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing filter config %s: %w", path, err)
	}

	allowed := make(map[string]bool, len(doc.AllowedExtensions))
	for _, ext := range doc.AllowedExtensions {
		allowed[ext] = true
	}

	spec := &filterspec.Spec{
		Enabled:           doc.Enabled,
		AllowedExtensions: allowed,
		MinWidth:          doc.MinWidth,
		MaxWidth:          doc.MaxWidth,
		MinHeight:         doc.MinHeight,
		MaxHeight:         doc.MaxHeight,
		MinFileSize:       doc.MinFileSize,
		MaxFileSize:       doc.MaxFileSize,
		Creditline:        toPredicate(doc.Creditline),
		CopyrightLine:     toPredicate(doc.CopyrightLine),
		UsageType:         toPredicate(doc.UsageType),
		RightsHolder:      toPredicate(doc.RightsHolder),
		Location:          toPredicate(doc.Location),
		Move: filterspec.MoveSpec{
			Enabled:     doc.Move.Enabled,
			Destination: doc.Move.Destination,
			Layout:      filterspec.MoveLayout(doc.Move.Layout),
		},
	}
	return spec, nil
}

func toPredicate(d *predicateDoc) *filterspec.TextPredicate {
	if d == nil {
		return nil
	}
	return &filterspec.TextPredicate{Operator: filterspec.Operator(d.Operator), Value: d.Value}
}
