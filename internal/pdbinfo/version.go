package pdbinfo

import (
	"errors"
	"fmt"
)

// Version identifies the format revision of the PDB Info stream.
type Version uint32

// PDB Info stream versions
const (
	VC2     Version = 19941610
	VC4     Version = 19950623
	VC41    Version = 19950814
	VC50    Version = 19960307
	VC98    Version = 19970604
	VC70Dep Version = 19990604
	VC70    Version = 20000404
	VC80    Version = 20030901
	VC110   Version = 20091201
	VC140   Version = 20140508
)

var versionNames = map[Version]string{
	VC2:     "VC2",
	VC4:     "VC4",
	VC41:    "VC41",
	VC50:    "VC50",
	VC98:    "VC98",
	VC70Dep: "VC70Dep",
	VC70:    "VC70",
	VC80:    "VC80",
	VC110:   "VC110",
	VC140:   "VC140",
}

// ErrUnknownVersion is returned for a version value outside the known set.
var ErrUnknownVersion = errors.New("pdbinfo: unknown version")

// ParseVersion maps a raw version value to a known Version.
func ParseVersion(raw uint32) (Version, error) {
	v := Version(raw)
	if _, ok := versionNames[v]; !ok {
		return 0, fmt.Errorf("%w %d", ErrUnknownVersion, raw)
	}
	return v, nil
}

func (v Version) String() string {
	if name, ok := versionNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Version(%d)", uint32(v))
}

// FeatureCode is a signature from the list that trails the named stream map.
type FeatureCode uint32

// Feature signatures
const (
	FeatureVC110            FeatureCode = 20091201
	FeatureVC140            FeatureCode = 20140508
	FeatureNoTypeMerge      FeatureCode = 0x4D544F4E // "NOTM"
	FeatureMinimalDebugInfo FeatureCode = 0x494E494D // "MINI"
)

var featureNames = map[FeatureCode]string{
	FeatureVC110:            "VC110",
	FeatureVC140:            "VC140",
	FeatureNoTypeMerge:      "NoTypeMerge",
	FeatureMinimalDebugInfo: "MinimalDebugInfo",
}

// ErrUnknownFeatureCode is returned for a feature signature outside the known set.
var ErrUnknownFeatureCode = errors.New("pdbinfo: unknown feature code")

// ParseFeatureCode maps a raw signature to a known FeatureCode.
func ParseFeatureCode(raw uint32) (FeatureCode, error) {
	f := FeatureCode(raw)
	if _, ok := featureNames[f]; !ok {
		return 0, fmt.Errorf("%w 0x%08x", ErrUnknownFeatureCode, raw)
	}
	return f, nil
}

func (f FeatureCode) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FeatureCode(0x%08x)", uint32(f))
}
