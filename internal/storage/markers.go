package storage

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/natkin/internal/natural"
)

var ErrMarkerHeader = errors.New("storage: malformed marker header")

var axisSuffixes = [3]string{"_x", "_y", "_z"}

// WriteMarkers writes marker trajectories as CSV: a frame column followed by
// NAME_x, NAME_y, NAME_z for each name. Markers absent from a frame, or with
// a non-finite coordinate, are written as empty fields.
func WriteMarkers(w io.Writer, names []string, frames []natural.MarkerFrame) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, 1+3*len(names))
	header = append(header, "frame")
	for _, name := range names {
		for _, s := range axisSuffixes {
			header = append(header, name+s)
		}
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write marker header")
	}

	record := make([]string, len(header))
	for i, frame := range frames {
		record[0] = strconv.Itoa(i)
		for j, name := range names {
			p, ok := frame[name]
			ok = ok && finite(p)
			for k, v := range [3]float64{p.X, p.Y, p.Z} {
				record[1+3*j+k] = ""
				if ok {
					record[1+3*j+k] = strconv.FormatFloat(v, 'g', -1, 64)
				}
			}
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write frame %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush markers")
}

// ReadMarkers parses the format written by WriteMarkers. A marker with any
// empty or NaN coordinate is left out of that frame.
func ReadMarkers(r io.Reader) ([]string, []natural.MarkerFrame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "read marker header")
	}
	names, err := parseMarkerHeader(header)
	if err != nil {
		return nil, nil, err
	}

	var frames []natural.MarkerFrame
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "line %d", line)
		}
		frame := make(natural.MarkerFrame, len(names))
		for j, name := range names {
			var xyz [3]float64
			present := true
			for k := range xyz {
				field := strings.TrimSpace(record[1+3*j+k])
				if field == "" {
					present = false
					break
				}
				if xyz[k], err = strconv.ParseFloat(field, 64); err != nil {
					return nil, nil, errors.Wrapf(err, "line %d, %s", line, header[1+3*j+k])
				}
			}
			p := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
			if present && finite(p) {
				frame[name] = p
			}
		}
		frames = append(frames, frame)
	}
	return names, frames, nil
}

func parseMarkerHeader(header []string) ([]string, error) {
	if len(header) == 0 || (header[0] != "frame" && header[0] != "time") {
		return nil, errors.Wrap(ErrMarkerHeader, "first column must be frame or time")
	}
	if (len(header)-1)%3 != 0 {
		return nil, errors.Wrapf(ErrMarkerHeader, "%d coordinate columns is not a multiple of 3", len(header)-1)
	}
	names := make([]string, 0, (len(header)-1)/3)
	for j := 1; j < len(header); j += 3 {
		name := strings.TrimSuffix(header[j], axisSuffixes[0])
		for k, s := range axisSuffixes {
			if header[j+k] != name+s {
				return nil, errors.Wrapf(ErrMarkerHeader, "column %q, expected %q", header[j+k], name+s)
			}
		}
		names = append(names, name)
	}
	return names, nil
}

func finite(p r3.Vector) bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
