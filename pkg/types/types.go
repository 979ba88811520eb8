// Copyright 2026 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"fmt"
	"strings"
)

type SensorType int
type GroupType string
type SourceKind string
type Subtype string
type FileExtension string
type OutputType string

const (
	SensorTypeUndefined SensorType = iota - 1
	SensorTypePhotoVideo
	SensorTypeShortThrowToFDepth
	SensorTypeShortThrowToFReflectivity
	SensorTypeLongThrowToFDepth
	SensorTypeLongThrowToFReflectivity
	SensorTypeVisibleLightLeftLeft
	SensorTypeVisibleLightLeftFront
	SensorTypeVisibleLightRightFront
	SensorTypeVisibleLightRightRight

	// sentinel, must stay last
	NumberOfSensorTypes
)

const (
	// source group types
	GroupTypePhotoVideo          GroupType = "photo_video"
	GroupTypeResearchModeSensors GroupType = "research_mode_sensors"

	// source kinds
	SourceKindColor    SourceKind = "color"
	SourceKindDepth    SourceKind = "depth"
	SourceKindInfrared SourceKind = "infrared"
	SourceKindCustom   SourceKind = "custom"

	// pixel format subtypes
	SubtypeBGRA8 Subtype = "BGRA8"
	SubtypeNV12  Subtype = "NV12"
	SubtypeYUY2  Subtype = "YUY2"
	SubtypeD16   Subtype = "D16"
	SubtypeL8    Subtype = "L8"
	SubtypeL16   Subtype = "L16"
	SubtypeMJPG  Subtype = "MJPG"
	SubtypeH264  Subtype = "H264"

	// file extensions
	FileExtensionRaw  FileExtension = ".raw"
	FileExtensionCSV  FileExtension = ".csv"
	FileExtensionJSON FileExtension = ".json"
	FileExtensionTar  FileExtension = ".tar"

	// upload content types
	OutputTypeRaw  OutputType = "application/octet-stream"
	OutputTypeCSV  OutputType = "text/csv"
	OutputTypeJSON OutputType = "application/json"
	OutputTypeTar  OutputType = "application/x-tar"
)

type researchModeSource struct {
	name       string
	kind       SourceKind
	sensorType SensorType
}

var (
	sensorTypeNames = [NumberOfSensorTypes]string{
		SensorTypePhotoVideo:                "PhotoVideo",
		SensorTypeShortThrowToFDepth:        "ShortThrowToFDepth",
		SensorTypeShortThrowToFReflectivity: "ShortThrowToFReflectivity",
		SensorTypeLongThrowToFDepth:         "LongThrowToFDepth",
		SensorTypeLongThrowToFReflectivity:  "LongThrowToFReflectivity",
		SensorTypeVisibleLightLeftLeft:      "VisibleLightLeftLeft",
		SensorTypeVisibleLightLeftFront:     "VisibleLightLeftFront",
		SensorTypeVisibleLightRightFront:    "VisibleLightRightFront",
		SensorTypeVisibleLightRightRight:    "VisibleLightRightRight",
	}

	// research mode sources share kinds, so they are told apart by their source id.
	// Matched in order; the first name contained in the id wins.
	researchModeSources = []researchModeSource{
		{"short throw tof depth", SourceKindDepth, SensorTypeShortThrowToFDepth},
		{"short throw tof reflectivity", SourceKindInfrared, SensorTypeShortThrowToFReflectivity},
		{"long throw tof depth", SourceKindDepth, SensorTypeLongThrowToFDepth},
		{"long throw tof reflectivity", SourceKindInfrared, SensorTypeLongThrowToFReflectivity},
		{"visible light left left", SourceKindInfrared, SensorTypeVisibleLightLeftLeft},
		{"visible light left front", SourceKindInfrared, SensorTypeVisibleLightLeftFront},
		{"visible light right front", SourceKindInfrared, SensorTypeVisibleLightRightFront},
		{"visible light right right", SourceKindInfrared, SensorTypeVisibleLightRightRight},
	}

	// requested subtypes per kind, uncompressed first
	RequestedSubtypes = map[SourceKind][]Subtype{
		SourceKindColor:    {SubtypeBGRA8, SubtypeNV12, SubtypeYUY2, SubtypeMJPG},
		SourceKindDepth:    {SubtypeD16},
		SourceKindInfrared: {SubtypeL8, SubtypeL16},
	}

	CompressedSubtypes = map[Subtype]bool{
		SubtypeMJPG: true,
		SubtypeH264: true,
	}

	BytesPerPixel = map[Subtype]float64{
		SubtypeBGRA8: 4,
		SubtypeNV12:  1.5,
		SubtypeYUY2:  2,
		SubtypeD16:   2,
		SubtypeL8:    1,
		SubtypeL16:   2,
	}

	GroupSensorTypes = map[GroupType][]SensorType{
		GroupTypePhotoVideo: {
			SensorTypePhotoVideo,
		},
		GroupTypeResearchModeSensors: {
			SensorTypeShortThrowToFDepth,
			SensorTypeShortThrowToFReflectivity,
			SensorTypeLongThrowToFDepth,
			SensorTypeLongThrowToFReflectivity,
			SensorTypeVisibleLightLeftLeft,
			SensorTypeVisibleLightLeftFront,
			SensorTypeVisibleLightRightFront,
			SensorTypeVisibleLightRightRight,
		},
	}
)

func (s SensorType) IsValid() bool {
	return s >= 0 && s < NumberOfSensorTypes
}

func (s SensorType) String() string {
	if !s.IsValid() {
		return "Undefined"
	}
	return sensorTypeNames[s]
}

func ParseSensorType(name string) (SensorType, error) {
	for i, n := range sensorTypeNames {
		if strings.EqualFold(n, name) {
			return SensorType(i), nil
		}
	}
	return SensorTypeUndefined, fmt.Errorf("unknown sensor type %q", name)
}

func AllSensorTypes() []SensorType {
	res := make([]SensorType, 0, NumberOfSensorTypes)
	for s := SensorType(0); s < NumberOfSensorTypes; s++ {
		res = append(res, s)
	}
	return res
}

// GetSensorType maps a capture source to the sensor type it feeds within a group.
// Returns SensorTypeUndefined for sources the group does not know about.
func GetSensorType(groupType GroupType, kind SourceKind, sourceID string) SensorType {
	switch groupType {
	case GroupTypePhotoVideo:
		if kind == SourceKindColor {
			return SensorTypePhotoVideo
		}

	case GroupTypeResearchModeSensors:
		id := strings.ToLower(sourceID)
		for _, src := range researchModeSources {
			if strings.Contains(id, src.name) {
				if src.kind == kind {
					return src.sensorType
				}
				return SensorTypeUndefined
			}
		}
	}

	return SensorTypeUndefined
}

// GetRequestedSubtypes returns the subtypes a reader may be opened with for a given kind,
// uncompressed subtypes first.
func GetRequestedSubtypes(kind SourceKind) []Subtype {
	requested := RequestedSubtypes[kind]
	res := make([]Subtype, 0, len(requested))
	for _, s := range requested {
		if !CompressedSubtypes[s] {
			res = append(res, s)
		}
	}
	for _, s := range requested {
		if CompressedSubtypes[s] {
			res = append(res, s)
		}
	}
	return res
}

func (g GroupType) IsValid() bool {
	_, ok := GroupSensorTypes[g]
	return ok
}
