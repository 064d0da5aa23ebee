// Package natural provides the numeric primitives of the natural coordinates
// formulation.
//
// A rigid segment is described by a redundant 12-parameter block
// Q = (u, rp, rd, w):
//
//   - u: unit vector, first axis of the segment
//   - rp: proximal point
//   - rd: distal point
//   - w: unit vector, second axis of the segment
//
// The vector v = rp - rd is the segment's longitudinal axis. A whole model is
// the concatenation of one block per segment, see [Coordinates].
//
// Any point or direction rigidly attached to a segment is a linear function of
// its block. [InterpolationMatrix] is that 3x12 operator; because every
// operator of the formulation has the shape [c0·I3, c1·I3, c2·I3, c3·I3] it is
// stored as four scalar coefficients.
//
// # Thread Safety
//
// All types are values or read-only slices; nothing here holds shared state.
package natural
