package placement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt marks a snapshot payload that could not be parsed.
var ErrCorrupt = errors.New("placement: corrupt snapshot")

// wireRecord is the persisted shape of a Record. Width and height are
// pointers so an absent field can default to 1 rather than 0.
type wireRecord struct {
	WidgetID        *int   `json:"widget_id"`
	ProviderPackage string `json:"provider_package"`
	ProviderClass   string `json:"provider_class"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Width           *int   `json:"width"`
	Height          *int   `json:"height"`
	PageIndex       int    `json:"page_index"`
}

// EncodeSnapshot renders records as the JSON snapshot payload.
func EncodeSnapshot(records []Record) ([]byte, error) {
	wire := make([]wireRecord, 0, len(records))
	for _, r := range records {
		id, w, h := r.WidgetID, r.Size.Width, r.Size.Height
		wire = append(wire, wireRecord{
			WidgetID:        &id,
			ProviderPackage: r.Provider.Package,
			ProviderClass:   r.Provider.Class,
			X:               r.Position.X,
			Y:               r.Position.Y,
			Width:           &w,
			Height:          &h,
			PageIndex:       r.Page,
		})
	}
	return json.Marshal(wire)
}

// DecodeSnapshot parses a snapshot payload. An empty payload or JSON null is
// an empty snapshot. Unknown fields are ignored and missing optional fields
// take their defaults; entries without a widget_id cannot be referenced and
// are skipped. Any parse failure is reported as ErrCorrupt.
func DecodeSnapshot(payload []byte) ([]Record, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, nil
	}
	var wire []wireRecord
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	out := make([]Record, 0, len(wire))
	for _, w := range wire {
		if w.WidgetID == nil {
			continue
		}
		r := Record{
			WidgetID: *w.WidgetID,
			Provider: ProviderRef{Package: w.ProviderPackage, Class: w.ProviderClass},
			Position: Position{X: w.X, Y: w.Y},
			Size:     Size{Width: 1, Height: 1},
			Page:     w.PageIndex,
		}
		if w.Width != nil {
			r.Size.Width = *w.Width
		}
		if w.Height != nil {
			r.Size.Height = *w.Height
		}
		out = append(out, r)
	}
	return out, nil
}
