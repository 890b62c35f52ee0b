// Package space provides index spaces, regions with typed fields, and
// partitions of index spaces.
//
// A partition assigns each color of a color space a subset of a parent space.
// Besides direct construction (EqualPartition, PartitionByFunc), partitions can
// be derived from data stored in region fields:
//
//   - ByImage / ByImageRange follow point or rect fields forward.
//   - ByPreimage / ByPreimageRange pull a partition back through them.
//
// Derived partitions are neither required to be disjoint nor complete; both
// properties are computed and exposed on the result.
package space
