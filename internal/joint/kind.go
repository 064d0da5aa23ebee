package joint

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the closed set of supported joint types.
type Kind int

const (
	Spherical Kind = iota
	Hinge
	Universal
	ConstantLength
	GroundSpherical
	GroundHinge
	GroundUniversal
	GroundWeld
	GroundFree
)

var kindNames = map[Kind]string{
	Spherical:       "spherical",
	Hinge:           "hinge",
	Universal:       "universal",
	ConstantLength:  "constant_length",
	GroundSpherical: "ground_spherical",
	GroundHinge:     "ground_hinge",
	GroundUniversal: "ground_universal",
	GroundWeld:      "ground_weld",
	GroundFree:      "ground_free",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{Spherical, Hinge, Universal, ConstantLength, GroundSpherical, GroundHinge, GroundUniversal, GroundWeld, GroundFree}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a name such as "hinge" or "ground_weld" to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("joint: unknown kind %q", s)
}

// NbConstraints returns the number of scalar equations of the kind.
func (k Kind) NbConstraints() int {
	switch k {
	case Spherical, GroundSpherical:
		return 3
	case Hinge, GroundHinge:
		return 5
	case Universal, GroundUniversal:
		return 4
	case ConstantLength:
		return 1
	case GroundWeld:
		return 12
	}
	return 0
}

// IsGround reports whether the kind binds a single segment to the inertial frame.
func (k Kind) IsGround() bool {
	return k >= GroundSpherical
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, errors.Errorf("joint: unknown kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
