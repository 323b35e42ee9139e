package serving

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Frame is a table in split orientation: column names and rows of values.
type Frame struct {
	Columns []string `json:"columns"`
	Index   []any    `json:"index,omitempty"`
	Data    [][]any  `json:"data"`
}

func (frame Frame) Validate() error {
	for i, row := range frame.Data {
		if len(row) != len(frame.Columns) {
			return fmt.Errorf("row %d has %d values but there are %d columns", i, len(row), len(frame.Columns))
		}
	}
	if frame.Index != nil && len(frame.Index) != len(frame.Data) {
		return fmt.Errorf("index has %d entries but there are %d rows", len(frame.Index), len(frame.Data))
	}
	return nil
}

// ReadJSONFrame decodes a frame in split orientation.
func ReadJSONFrame(r io.Reader) (Frame, error) {
	var frame Frame
	if err := json.NewDecoder(r).Decode(&frame); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	return frame, frame.Validate()
}

// ReadCSVFrame reads a frame whose first record holds the column names.
// Values that parse as numbers are sent as numbers, everything else as strings.
func ReadCSVFrame(r io.Reader) (Frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Frame{}, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return Frame{}, errors.New("csv input has no header")
	}

	frame := Frame{Columns: records[0], Data: make([][]any, 0, len(records)-1)}
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, value := range record {
			if number, err := strconv.ParseFloat(value, 64); err == nil {
				row[i] = number
				continue
			}
			row[i] = value
		}
		frame.Data = append(frame.Data, row)
	}

	return frame, frame.Validate()
}

// Array is a dense numeric array in row major order.
type Array struct {
	Shape []int
	Data  []float64
}

// Rows splits the array along its first dimension. A one dimensional array yields one single value row per element.
func (array Array) Rows() [][]float64 {
	if len(array.Shape) == 0 {
		return nil
	}
	width := 1
	for _, dim := range array.Shape[1:] {
		width *= dim
	}
	rows := make([][]float64, array.Shape[0])
	for i := range rows {
		rows[i] = array.Data[i*width : (i+1)*width]
	}
	return rows
}

// ParseArray parses a model server response: a possibly nested list of numbers such as "[[0.1, 0.9], [0.7, 0.3]]".
// Nested lists must be rectangular.
func ParseArray(data []byte) (Array, error) {
	var value any
	if err := yaml.Unmarshal(data, &value); err != nil {
		return Array{}, fmt.Errorf("failed to parse predictions: %w", err)
	}

	var array Array
	if err := flatten(value, 0, &array); err != nil {
		return Array{}, fmt.Errorf("failed to parse predictions: %w", err)
	}

	return array, nil
}

func flatten(value any, depth int, array *Array) error {
	switch value := value.(type) {
	case []any:
		if depth == len(array.Shape) {
			if len(array.Data) > 0 {
				return errors.New("ragged nested lists")
			}
			array.Shape = append(array.Shape, len(value))
		} else if array.Shape[depth] != len(value) {
			return errors.New("ragged nested lists")
		}
		for _, elem := range value {
			if err := flatten(elem, depth+1, array); err != nil {
				return err
			}
		}
		return nil
	case int:
		return appendScalar(float64(value), depth, array)
	case float64:
		return appendScalar(value, depth, array)
	case bool:
		if value {
			return appendScalar(1, depth, array)
		}
		return appendScalar(0, depth, array)
	default:
		return fmt.Errorf("unexpected value %v of type %T", value, value)
	}
}

func appendScalar(value float64, depth int, array *Array) error {
	if depth != len(array.Shape) {
		return errors.New("ragged nested lists")
	}
	array.Data = append(array.Data, value)
	return nil
}
