package datatables

import (
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Search is a search term sent by the widget.
type Search struct {
	Value string `json:"value"`
	Regex bool   `json:"regex"`
}

// OrderRequest is one entry of the widget's order[] array.
type OrderRequest struct {
	Column int    `json:"column"`
	Dir    string `json:"dir"`
}

// ColumnRequest is one entry of the widget's columns[] array.
type ColumnRequest struct {
	Data       int    `json:"data"`
	Name       string `json:"name"`
	Searchable bool   `json:"searchable"`
	Orderable  bool   `json:"orderable"`
	Search     Search `json:"search"`
}

// Request is the normalized AJAX payload of the widget.
type Request struct {
	Draw    int             `json:"draw"`
	Start   int             `json:"start"`
	Length  int             `json:"length"`
	Search  Search          `json:"search"`
	Order   []OrderRequest  `json:"order"`
	Columns []ColumnRequest `json:"columns"`
}

const defaultLength = 10

// Validate checks the request shape. Column indexes are only checked for
// sign here; the translator resolves them against the registry.
func (r *Request) Validate() error {
	if r.Start < 0 {
		return fmt.Errorf("%w: start %d", ErrBadRequest, r.Start)
	}
	if r.Length < -1 {
		return fmt.Errorf("%w: length %d", ErrBadRequest, r.Length)
	}
	if r.Length > 0 && r.Start > math.MaxInt-r.Length {
		return fmt.Errorf("%w: start %d with length %d is out of range", ErrBadRequest, r.Start, r.Length)
	}
	for i, o := range r.Order {
		if o.Column < 0 {
			return fmt.Errorf("%w: order[%d] column %d", ErrBadRequest, i, o.Column)
		}
		if _, err := ParseDirection(o.Dir); err != nil {
			return err
		}
	}
	for i, c := range r.Columns {
		if c.Data < 0 {
			return fmt.Errorf("%w: columns[%d] data %d", ErrBadRequest, i, c.Data)
		}
	}
	return nil
}

// ParseRequest reads the widget payload from the query string, a form body
// or a JSON body.
func ParseRequest(r *http.Request) (*Request, error) {
	if r.Method == http.MethodPost {
		if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
			req := &Request{Length: defaultLength}
			if err := json.NewDecoder(r.Body).Decode(req); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
			if err := req.Validate(); err != nil {
				return nil, err
			}
			return req, nil
		}
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return ParseValues(r.Form)
}

var (
	orderKey  = regexp.MustCompile(`^order\[(\d+)\]\[(column|dir)\]$`)
	columnKey = regexp.MustCompile(`^columns\[(\d+)\]\[(data|name|searchable|orderable)\]$`)
	searchKey = regexp.MustCompile(`^columns\[(\d+)\]\[search\]\[(value|regex)\]$`)
)

// ParseValues decodes the bracketed parameter encoding jQuery uses for the
// widget payload.
func ParseValues(v url.Values) (*Request, error) {
	req := &Request{Length: defaultLength}
	var err error
	if req.Draw, err = intParam(v, "draw", 0); err != nil {
		return nil, err
	}
	if req.Start, err = intParam(v, "start", 0); err != nil {
		return nil, err
	}
	if req.Length, err = intParam(v, "length", defaultLength); err != nil {
		return nil, err
	}
	req.Search.Value = v.Get("search[value]")
	if req.Search.Regex, err = boolParam(v, "search[regex]"); err != nil {
		return nil, err
	}

	orders := map[int]*OrderRequest{}
	columns := map[int]*ColumnRequest{}
	column := func(i int) *ColumnRequest {
		c, ok := columns[i]
		if !ok {
			c = &ColumnRequest{Data: i}
			columns[i] = c
		}
		return c
	}

	for key := range v {
		if m := orderKey.FindStringSubmatch(key); m != nil {
			i, err := bracketIndex(key, m[1])
			if err != nil {
				return nil, err
			}
			o, ok := orders[i]
			if !ok {
				o = &OrderRequest{Dir: "asc"}
				orders[i] = o
			}
			switch m[2] {
			case "column":
				if o.Column, err = intParam(v, key, 0); err != nil {
					return nil, err
				}
			case "dir":
				o.Dir = v.Get(key)
			}
			continue
		}
		if m := columnKey.FindStringSubmatch(key); m != nil {
			i, err := bracketIndex(key, m[1])
			if err != nil {
				return nil, err
			}
			c := column(i)
			switch m[2] {
			case "data":
				// data may also be a property name when the widget is fed
				// objects; only positional data addresses a column here.
				if d, convErr := strconv.Atoi(v.Get(key)); convErr == nil {
					c.Data = d
				} else if v.Get(key) != "" {
					return nil, fmt.Errorf("%w: %s=%q is not a column index", ErrBadRequest, key, v.Get(key))
				}
			case "name":
				c.Name = v.Get(key)
			case "searchable":
				if c.Searchable, err = boolParam(v, key); err != nil {
					return nil, err
				}
			case "orderable":
				if c.Orderable, err = boolParam(v, key); err != nil {
					return nil, err
				}
			}
			continue
		}
		if m := searchKey.FindStringSubmatch(key); m != nil {
			i, err := bracketIndex(key, m[1])
			if err != nil {
				return nil, err
			}
			c := column(i)
			switch m[2] {
			case "value":
				c.Search.Value = v.Get(key)
			case "regex":
				if c.Search.Regex, err = boolParam(v, key); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, i := range sortedKeys(orders) {
		req.Order = append(req.Order, *orders[i])
	}
	for _, i := range sortedKeys(columns) {
		req.Columns = append(req.Columns, *columns[i])
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// bracketIndex converts the index of a bracketed key such as order[3][dir].
func bracketIndex(key, digits string) (int, error) {
	i, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s has an index out of range", ErrBadRequest, key)
	}
	return i, nil
}

func intParam(v url.Values, key string, def int) (int, error) {
	s := strings.TrimSpace(v.Get(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrBadRequest, key, s)
	}
	return n, nil
}

func boolParam(v url.Values, key string) (bool, error) {
	s := strings.TrimSpace(v.Get(key))
	if s == "" {
		return false, nil
	}
	if strings.EqualFold(s, "on") {
		return true, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrBadRequest, key, s)
	}
	return b, nil
}
