// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package identify implements the on-device face identification pipeline:
// frame validation, face detection and embedding via an inference sidecar,
// and cosine matching against a patient's registered relatives.
package identify

import "image"

// EmbeddingDim is the length of every face embedding vector.
const EmbeddingDim = 512

// BoundingBox is a face location in frame pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectedFace is one face found in a frame, with its aligned crop and
// normalized embedding.
type DetectedFace struct {
	Box       BoundingBox
	Crop      *image.RGBA
	Embedding []float32
}

// Relative is a registered person from the patient's circle, with the
// embeddings of their enrollment photos.
type Relative struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Relationship string      `json:"relationship"`
	PhotoCount   int         `json:"photo_count"`
	Embeddings   [][]float32 `json:"embeddings"`
}

// Match is the identification result for a single detected face.
type Match struct {
	Box          BoundingBox `json:"bounding_box"`
	PersonID     string      `json:"person_id,omitempty"`
	Name         string      `json:"name"`
	Relationship string      `json:"relationship"`
	PhotoCount   int         `json:"photo_count,omitempty"`
	Confidence   float64     `json:"confidence"`
	Error        string      `json:"error,omitempty"`
}

// Result is the full outcome of one identification request.
type Result struct {
	PatientUID string  `json:"patient_uid"`
	Faces      []Match `json:"faces"`
	FaceCount  int     `json:"face_count"`
}
