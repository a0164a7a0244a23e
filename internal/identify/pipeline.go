// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package identify

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"

	"github.com/deon-george/auramodule/internal/config"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/metrics"
)

// Frame dimension bounds accepted by the pipeline.
const (
	MinFrameDim = 50
	MaxFrameDim = 4096
)

// cropPadding is added around each detected box before alignment.
const cropPadding = 20

// cropSize is the aligned crop edge length expected by the embedding model.
const cropSize = 112

// Pipeline runs frame validation, detection, alignment, embedding and
// matching for one identification request.
type Pipeline struct {
	inference Inference
	relatives RelativeSource
	threshold float64
	log       zerolog.Logger
}

// NewPipeline wires the identification stages together.
func NewPipeline(inference Inference, relatives RelativeSource, cfg config.IdentifyConfig) *Pipeline {
	return &Pipeline{
		inference: inference,
		relatives: relatives,
		threshold: cfg.ConfidenceThreshold,
		log:       logging.With().Str("component", "identify").Logger(),
	}
}

// Available reports whether the inference capability is configured.
func (p *Pipeline) Available() bool {
	return p.inference != nil && p.inference.Available()
}

// ValidateFrame rejects frames outside the supported dimension range.
func ValidateFrame(frame image.Image) error {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < MinFrameDim || h < MinFrameDim {
		return fmt.Errorf("frame %dx%d below minimum %dx%d", w, h, MinFrameDim, MinFrameDim)
	}
	if w > MaxFrameDim || h > MaxFrameDim {
		return fmt.Errorf("frame %dx%d above maximum %dx%d", w, h, MaxFrameDim, MaxFrameDim)
	}
	return nil
}

// Detect finds faces in the frame and embeds each aligned crop. Boxes are
// clamped to the frame; degenerate boxes are discarded.
func (p *Pipeline) Detect(ctx context.Context, frame image.Image) ([]DetectedFace, error) {
	if err := ValidateFrame(frame); err != nil {
		return nil, err
	}
	if !p.Available() {
		return nil, ErrUnavailable
	}

	boxes, err := p.inference.DetectFaces(ctx, frame)
	if err != nil {
		return nil, err
	}

	faces := make([]DetectedFace, 0, len(boxes))
	for _, box := range boxes {
		crop, clamped, ok := alignCrop(frame, box)
		if !ok {
			p.log.Debug().Interface("box", box).Msg("discarding degenerate face box")
			continue
		}
		embedding, err := p.inference.Embed(ctx, crop)
		if err != nil {
			return nil, fmt.Errorf("embedding face at (%d,%d): %w", clamped.X, clamped.Y, err)
		}
		faces = append(faces, DetectedFace{Box: clamped, Crop: crop, Embedding: embedding})
	}
	return faces, nil
}

// Identify runs the full pipeline for one frame. Failures past detection
// degrade per face rather than failing the request: a relatives fetch error
// marks every face unknown with the error attached, and a single face's
// matching error does not affect its neighbors.
func (p *Pipeline) Identify(ctx context.Context, frame image.Image, patientUID, authToken string) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.IdentifyDuration.Observe(time.Since(start).Seconds())
	}()

	faces, err := p.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}

	result := &Result{PatientUID: patientUID, FaceCount: len(faces)}
	if len(faces) == 0 {
		result.Faces = []Match{}
		return result, nil
	}

	relatives, fetchErr := p.relatives.Relatives(ctx, patientUID, authToken)
	if fetchErr != nil {
		p.log.Warn().Err(fetchErr).Str("patient_uid", patientUID).Msg("relatives fetch failed")
		for _, f := range faces {
			result.Faces = append(result.Faces, Match{
				Box:        f.Box,
				Name:       UnknownIdentity,
				Confidence: 0.0,
				Error:      fetchErr.Error(),
			})
		}
		return result, nil
	}

	for _, f := range faces {
		result.Faces = append(result.Faces, p.matchFace(f, relatives))
	}
	return result, nil
}

// matchFace scores one face against the relative set. Panics in scoring are
// contained to the face.
func (p *Pipeline) matchFace(face DetectedFace, relatives []Relative) (m Match) {
	m = Match{Box: face.Box, Name: UnknownIdentity, Confidence: 0.0}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("face matching panicked")
			m = Match{Box: face.Box, Name: UnknownIdentity, Confidence: 0.0, Error: "matching_error"}
		}
	}()

	best, score := bestMatch(face.Embedding, relatives)
	if best == nil {
		metrics.FacesMatched.WithLabelValues("unknown").Inc()
		return m
	}
	if score >= p.threshold {
		metrics.FacesMatched.WithLabelValues("matched").Inc()
		m.PersonID = best.ID
		m.Name = best.Name
		m.Relationship = best.Relationship
		m.PhotoCount = best.PhotoCount
		m.Confidence = roundConfidence(score)
		return m
	}
	metrics.FacesMatched.WithLabelValues("unknown").Inc()
	m.Confidence = roundConfidence(score)
	return m
}

// alignCrop clamps the padded box to the frame, rejects boxes with no area
// and scales the crop to the model's input size.
func alignCrop(frame image.Image, box BoundingBox) (*image.RGBA, BoundingBox, bool) {
	bounds := frame.Bounds()

	x0 := clampInt(box.X-cropPadding, bounds.Min.X, bounds.Max.X)
	y0 := clampInt(box.Y-cropPadding, bounds.Min.Y, bounds.Max.Y)
	x1 := clampInt(box.X+box.Width+cropPadding, bounds.Min.X, bounds.Max.X)
	y1 := clampInt(box.Y+box.Height+cropPadding, bounds.Min.Y, bounds.Max.Y)
	if x1 <= x0 || y1 <= y0 {
		return nil, BoundingBox{}, false
	}

	crop := image.NewRGBA(image.Rect(0, 0, cropSize, cropSize))
	xdraw.ApproxBiLinear.Scale(crop, crop.Bounds(), frame, image.Rect(x0, y0, x1, y1), xdraw.Src, nil)

	clamped := BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
	return crop, clamped, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
