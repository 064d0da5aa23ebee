package storage

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/san-kum/natkin/internal/natural"
)

func TestMarkersRoundTrip(t *testing.T) {
	names := []string{"RASIS", "KNE"}
	frames := []natural.MarkerFrame{
		{"RASIS": {X: 0.12, Y: 0, Z: 1.05}, "KNE": {X: 0.05, Y: -0.42, Z: 1}},
		{"RASIS": {X: 0.13, Y: 0.01, Z: 1.04}},
		{"RASIS": {X: math.NaN(), Y: 0, Z: 0}, "KNE": {X: 0.06, Y: -0.41, Z: 0.99}},
	}

	var buf bytes.Buffer
	if err := WriteMarkers(&buf, names, frames); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "frame,RASIS_x,RASIS_y,RASIS_z,KNE_x,KNE_y,KNE_z\n") {
		t.Errorf("unexpected header in %q", buf.String())
	}

	gotNames, got, err := ReadMarkers(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if diff := cmp.Diff(names, gotNames); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	want := []natural.MarkerFrame{
		frames[0],
		frames[1],
		{"KNE": {X: 0.06, Y: -0.41, Z: 0.99}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMarkersTimeColumn(t *testing.T) {
	src := "time, A_x, A_y, A_z\n0.00, 1, 2, 3\n0.01, , 2, 3\n"
	names, frames, err := ReadMarkers(strings.NewReader(src))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(names) != 1 || len(frames) != 2 {
		t.Fatalf("got %v names and %d frames", names, len(frames))
	}
	if frames[0]["A"] != (r3.Vector{X: 1, Y: 2, Z: 3}) {
		t.Errorf("frame 0 = %v", frames[0])
	}
	if _, ok := frames[1]["A"]; ok {
		t.Error("marker with an empty field should be missing")
	}
}

func TestReadMarkersErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		header bool
	}{
		{"empty", "", false},
		{"no frame column", "A_x,A_y,A_z\n", true},
		{"partial triplet", "frame,A_x,A_y\n", true},
		{"mismatched names", "frame,A_x,B_y,A_z\n", true},
		{"bad number", "frame,A_x,A_y,A_z\n0,1,two,3\n", false},
		{"short row", "frame,A_x,A_y,A_z\n0,1,2\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadMarkers(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.header && !errors.Is(err, ErrMarkerHeader) {
				t.Errorf("expected ErrMarkerHeader, got %v", err)
			}
		})
	}
}
