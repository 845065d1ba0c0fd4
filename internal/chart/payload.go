package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload reports a body that cannot be used to build a chart.
var ErrInvalidPayload = errors.New("chart: invalid payload")

var validate = newValidator()

// DataPayload is the decoded series served by the data endpoints.
// X holds the plotted values and Y the label for each value.
type DataPayload struct {
	X []float64 `json:"x"`
	Y []Label   `json:"y"`
}

// Label is an x-axis label. The wire format allows strings and numbers.
type Label string

// UnmarshalJSON accepts a JSON string or number.
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty label", ErrInvalidPayload)
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*l = Label(n.String())
		return nil
	default:
		return fmt.Errorf("%w: label must be a string or number, got %s", ErrInvalidPayload, string(data))
	}
}

// Len returns the number of points in the payload.
func (p DataPayload) Len() int {
	return len(p.X)
}

// Labels returns the labels as plain strings.
func (p DataPayload) Labels() []string {
	labels := make([]string, len(p.Y))
	for i, label := range p.Y {
		labels[i] = string(label)
	}
	return labels
}

// MarshalJSON always emits arrays, never null.
func (p DataPayload) MarshalJSON() ([]byte, error) {
	type wire struct {
		X []float64 `json:"x"`
		Y []Label   `json:"y"`
	}
	out := wire{X: p.X, Y: p.Y}
	if out.X == nil {
		out.X = []float64{}
	}
	if out.Y == nil {
		out.Y = []Label{}
	}
	return json.Marshal(out)
}

// Validate checks the x/y length invariant.
func (p DataPayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// wirePayload requires both keys. A missing or null array decodes to a nil
// pointer and is rejected.
type wirePayload struct {
	X *[]value `json:"x"`
	Y *[]Label `json:"y"`
}

// value is a plotted number that refuses JSON null.
type value float64

func (v *value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: null value in x", ErrInvalidPayload)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = value(f)
	return nil
}

// DecodePayload strictly decodes and validates a single JSON payload.
func DecodePayload(r io.Reader) (DataPayload, error) {
	dec := json.NewDecoder(r)
	var decoded *wirePayload
	if err := dec.Decode(&decoded); err != nil {
		return DataPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if decoded == nil {
		return DataPayload{}, fmt.Errorf("%w: empty document", ErrInvalidPayload)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return DataPayload{}, fmt.Errorf("%w: trailing data after payload", ErrInvalidPayload)
	}
	if decoded.X == nil || decoded.Y == nil {
		return DataPayload{}, fmt.Errorf("%w: x and y arrays are required", ErrInvalidPayload)
	}

	payload := DataPayload{X: make([]float64, len(*decoded.X)), Y: *decoded.Y}
	for i, v := range *decoded.X {
		payload.X[i] = float64(v)
	}
	if err := payload.Validate(); err != nil {
		return DataPayload{}, err
	}
	return payload, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		p := sl.Current().Interface().(DataPayload)
		if len(p.X) != len(p.Y) {
			sl.ReportError(p.Y, "Y", "y", "eqlen_x", fmt.Sprintf("%d", len(p.X)))
		}
	}, DataPayload{})
	return v
}
