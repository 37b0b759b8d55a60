package models

import (
	"encoding/json"
	"fmt"
)

// EncodeLandmarks serializes a landmark sequence for storage. The at-rest
// form is a JSON array of {time, frequency_zone, spectral_peak} objects and
// round-trips the ordered sequence losslessly.
func EncodeLandmarks(landmarks []Landmark) ([]byte, error) {
	raw, err := json.Marshal(landmarks)
	if err != nil {
		return nil, fmt.Errorf("encoding landmarks: %w", err)
	}
	return raw, nil
}

// DecodeLandmarks parses a stored landmark payload.
func DecodeLandmarks(raw []byte) ([]Landmark, error) {
	var landmarks []Landmark
	if err := json.Unmarshal(raw, &landmarks); err != nil {
		return nil, fmt.Errorf("decoding landmarks: %w", err)
	}
	return landmarks, nil
}
