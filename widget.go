package datatables

import (
	"encoding/json"
	"fmt"
)

// widgetColumn is the column entry of the widget configuration.
type widgetColumn struct {
	Name           string      `json:"name"`
	Data           int         `json:"data"`
	Title          string      `json:"title,omitempty"`
	Type           DisplayType `json:"type,omitempty"`
	Visible        bool        `json:"visible"`
	Orderable      bool        `json:"orderable"`
	Searchable     bool        `json:"searchable"`
	Width          string      `json:"width,omitempty"`
	CellType       string      `json:"cellType,omitempty"`
	ClassName      string      `json:"className,omitempty"`
	ContentPadding string      `json:"contentPadding,omitempty"`
	DefaultContent string      `json:"defaultContent,omitempty"`
}

// WidgetConfig returns the configuration object handed to the widget's
// constructor, with the data endpoint set to ajaxURL.
func (b *ConfigBundle) WidgetConfig(ajaxURL string) ([]byte, error) {
	opts := *b.Options
	opts.Ajax.URL = ajaxURL

	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}

	cols := b.Columns.All()
	wcs := make([]widgetColumn, len(cols))
	for i, c := range cols {
		wcs[i] = widgetColumn{
			Name:           c.Name,
			Data:           c.Index,
			Title:          c.Title,
			Type:           c.Type,
			Visible:        c.Visible,
			Orderable:      c.Orderable && c.StoreBacked(),
			Searchable:     c.Searchable && c.StoreBacked(),
			Width:          c.Width,
			CellType:       c.CellType,
			ClassName:      c.ClassName,
			ContentPadding: c.ContentPadding,
			DefaultContent: c.DefaultContent,
		}
	}
	if obj["columns"], err = json.Marshal(wcs); err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// Script returns the statement that initializes the widget on selector.
func (b *ConfigBundle) Script(selector, ajaxURL string) (string, error) {
	cfg, err := b.WidgetConfig(ajaxURL)
	if err != nil {
		return "", err
	}
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("$(%s).DataTable(%s);", sel, cfg), nil
}

// AssetQuery is the query string of the asset endpoints for the bundle's
// asset selection.
func (b *ConfigBundle) AssetQuery() string {
	return b.Assets.Query().Encode()
}
