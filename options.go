package datatables

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Features toggles the widget's feature switches. Nil pointers leave the
// widget default in place.
type Features struct {
	AutoWidth    *bool  `json:"autoWidth,omitempty"`
	DeferRender  *bool  `json:"deferRender,omitempty"`
	Info         *bool  `json:"info,omitempty"`
	LengthChange *bool  `json:"lengthChange,omitempty"`
	Ordering     *bool  `json:"ordering,omitempty"`
	Paging       *bool  `json:"paging,omitempty"`
	Processing   bool   `json:"processing"`
	ScrollX      *bool  `json:"scrollX,omitempty"`
	ScrollY      string `json:"scrollY,omitempty"`
	Searching    *bool  `json:"searching,omitempty"`
	ServerSide   bool   `json:"serverSide"`
	StateSave    *bool  `json:"stateSave,omitempty"`
}

// PageOptions holds the page-size options.
type PageOptions struct {
	PageLength int    `json:"pageLength,omitempty"`
	LengthMenu []int  `json:"lengthMenu,omitempty"`
	PagingType string `json:"pagingType,omitempty"`
}

// Ajax configures the data endpoint. Type is the endpoint style the data
// handler accepts for the table.
type Ajax struct {
	URL     string `json:"url,omitempty"`
	Type    string `json:"type"`
	DataSrc string `json:"dataSrc,omitempty"`
}

// Language overrides the widget's UI strings.
type Language struct {
	URL            string `json:"url,omitempty"`
	Decimal        string `json:"decimal,omitempty"`
	Thousands      string `json:"thousands,omitempty"`
	EmptyTable     string `json:"emptyTable,omitempty"`
	Info           string `json:"info,omitempty"`
	InfoEmpty      string `json:"infoEmpty,omitempty"`
	InfoFiltered   string `json:"infoFiltered,omitempty"`
	LengthMenu     string `json:"lengthMenu,omitempty"`
	LoadingRecords string `json:"loadingRecords,omitempty"`
	Processing     string `json:"processing,omitempty"`
	Search         string `json:"search,omitempty"`
	ZeroRecords    string `json:"zeroRecords,omitempty"`
}

// SearchOptions is the initial global search state.
type SearchOptions struct {
	Search          string `json:"search,omitempty"`
	Regex           bool   `json:"regex,omitempty"`
	Smart           *bool  `json:"smart,omitempty"`
	CaseInsensitive *bool  `json:"caseInsensitive,omitempty"`
}

// Select configures the Select plugin.
type Select struct {
	Style      string `json:"style,omitempty"`
	Items      string `json:"items,omitempty"`
	Info       *bool  `json:"info,omitempty"`
	ClassName  string `json:"className,omitempty"`
	Blurable   *bool  `json:"blurable,omitempty"`
	Toggleable *bool  `json:"toggleable,omitempty"`
}

// InitialOrder is one entry of the widget's initial ordering, encoded as
// [column, "asc"|"desc"].
type InitialOrder struct {
	Column int
	Dir    string
}

func (o InitialOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{o.Column, o.Dir})
}

func (o *InitialOrder) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &o.Column); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &o.Dir)
}

// Options is the widget configuration object.
type Options struct {
	Features
	PageOptions
	Ajax       Ajax           `json:"ajax"`
	Language   *Language      `json:"language,omitempty"`
	Search     *SearchOptions `json:"search,omitempty"`
	Select     *Select        `json:"select,omitempty"`
	Order      []InitialOrder `json:"order,omitempty"`
	Dom        string         `json:"dom,omitempty"`
	RowID      string         `json:"rowId,omitempty"`
	DateFormat string         `json:"-"`
}

// NewOptions returns the defaults every table starts from.
func NewOptions() *Options {
	return &Options{
		Features:    Features{Processing: true, ServerSide: true},
		PageOptions: PageOptions{PageLength: 10, LengthMenu: []int{10, 25, 50, 100}},
		Ajax:        Ajax{Type: "GET"},
	}
}

var (
	pagingTypes  = []string{"numbers", "simple", "simple_numbers", "full", "full_numbers", "first_last_numbers"}
	selectStyles = []string{"api", "single", "multi", "os", "multi+shift"}
	selectItems  = []string{"row", "column", "cell"}
)

func oneOf(field, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidConfiguration, field, strings.Join(allowed, ", "), v)
}

func boolPtr(v bool) *bool { return &v }

func (o *Options) SetAutoWidth(v bool)    { o.AutoWidth = boolPtr(v) }
func (o *Options) SetDeferRender(v bool)  { o.DeferRender = boolPtr(v) }
func (o *Options) SetInfo(v bool)         { o.Info = boolPtr(v) }
func (o *Options) SetLengthChange(v bool) { o.LengthChange = boolPtr(v) }
func (o *Options) SetOrdering(v bool)     { o.Ordering = boolPtr(v) }
func (o *Options) SetPaging(v bool)       { o.Paging = boolPtr(v) }
func (o *Options) SetProcessing(v bool)   { o.Processing = v }
func (o *Options) SetScrollX(v bool)      { o.ScrollX = boolPtr(v) }
func (o *Options) SetScrollY(v string)    { o.ScrollY = v }
func (o *Options) SetSearching(v bool)    { o.Searching = boolPtr(v) }
func (o *Options) SetStateSave(v bool)    { o.StateSave = boolPtr(v) }
func (o *Options) SetDom(v string)        { o.Dom = v }
func (o *Options) SetRowID(v string)      { o.RowID = v }

// SetServerSide exists so that definitions ported from client-side tables
// fail loudly: server-side processing is the only supported mode.
func (o *Options) SetServerSide(v bool) error {
	if !v {
		return ErrServerSideRequired
	}
	o.ServerSide = true
	return nil
}

func (o *Options) SetPageLength(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: page length must be positive, got %d", ErrInvalidConfiguration, n)
	}
	o.PageLength = n
	return nil
}

// SetLengthMenu sets the page-size choices; -1 stands for "all".
func (o *Options) SetLengthMenu(sizes ...int) error {
	if len(sizes) == 0 {
		return fmt.Errorf("%w: length menu is empty", ErrInvalidConfiguration)
	}
	for _, n := range sizes {
		if n == 0 || n < -1 {
			return fmt.Errorf("%w: length menu entry %d", ErrInvalidConfiguration, n)
		}
	}
	o.LengthMenu = append([]int(nil), sizes...)
	return nil
}

func (o *Options) SetPagingType(t string) error {
	if err := oneOf("paging type", t, pagingTypes); err != nil {
		return err
	}
	o.PagingType = t
	return nil
}

// SetAjaxType declares the endpoint style of the data handler.
func (o *Options) SetAjaxType(method string) error {
	method = strings.ToUpper(method)
	if err := oneOf("ajax type", method, []string{"GET", "POST"}); err != nil {
		return err
	}
	o.Ajax.Type = method
	return nil
}

func (o *Options) SetAjaxDataSrc(src string) { o.Ajax.DataSrc = src }

// SetLanguage replaces the language overrides.
func (o *Options) SetLanguage(l Language) { o.Language = &l }

func (o *Options) SetSearch(term string, regex bool) {
	if o.Search == nil {
		o.Search = &SearchOptions{}
	}
	o.Search.Search = term
	o.Search.Regex = regex
}

// SetSelectStyle enables the Select plugin with the given style.
func (o *Options) SetSelectStyle(style string) error {
	if err := oneOf("select style", style, selectStyles); err != nil {
		return err
	}
	o.selectOptions().Style = style
	return nil
}

func (o *Options) SetSelectItems(items string) error {
	if err := oneOf("select items", items, selectItems); err != nil {
		return err
	}
	o.selectOptions().Items = items
	return nil
}

func (o *Options) SetSelectInfo(v bool) { o.selectOptions().Info = boolPtr(v) }

func (o *Options) selectOptions() *Select {
	if o.Select == nil {
		o.Select = &Select{}
	}
	return o.Select
}

// AddOrder appends an initial widget ordering entry.
func (o *Options) AddOrder(column int, dir string) error {
	d, err := ParseDirection(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if column < 0 {
		return fmt.Errorf("%w: order column %d", ErrInvalidConfiguration, column)
	}
	o.Order = append(o.Order, InitialOrder{Column: column, Dir: strings.ToLower(string(d))})
	return nil
}

// Validate checks the options as a whole, including against the columns
// they refer to.
func (o *Options) Validate(cols *Columns) error {
	if !o.ServerSide {
		return ErrServerSideRequired
	}
	if o.Ajax.Type != "GET" && o.Ajax.Type != "POST" {
		return fmt.Errorf("%w: ajax type %q", ErrInvalidConfiguration, o.Ajax.Type)
	}
	if o.PagingType != "" {
		if err := oneOf("paging type", o.PagingType, pagingTypes); err != nil {
			return err
		}
	}
	if o.Select != nil {
		if o.Select.Style != "" {
			if err := oneOf("select style", o.Select.Style, selectStyles); err != nil {
				return err
			}
		}
		if o.Select.Items != "" {
			if err := oneOf("select items", o.Select.Items, selectItems); err != nil {
				return err
			}
		}
	}
	if cols != nil {
		for _, entry := range o.Order {
			c, err := cols.ByIndex(entry.Column)
			if err != nil {
				return fmt.Errorf("%w: initial order: %v", ErrInvalidConfiguration, err)
			}
			if !c.StoreBacked() || !c.Orderable {
				return fmt.Errorf("%w: initial order on %s, which cannot be ordered", ErrInvalidConfiguration, c.Name)
			}
		}
	}
	return nil
}
