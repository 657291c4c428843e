package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRemoteError is returned when the API answered with an error body
// instead of the requested entity.
var ErrRemoteError = errors.New("remote service error")

// legacyFields maps field names from older API schemas to their current
// top-level names. Applied once at ingestion so business logic never
// branches on record shape.
var legacyFields = map[string]string{
	"numCitedBy":           "citationCount",
	"numCiting":            "referenceCount",
	"numInfluentialPapers": "influentialCitationCount",
}

// legacyExternalIDs maps legacy top-level identifier fields into the
// externalIds map.
var legacyExternalIDs = map[string]string{
	"arxivId":  "ArXiv",
	"doi":      "DOI",
	"pubmedId": "PubMed",
	"magId":    "MAG",
	"aclId":    "ACL",
}

// remapLegacy rewrites a raw details object from a legacy schema to the
// current one. It is a no-op for objects already in current shape.
func remapLegacy(raw map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(raw))
	var ext map[string]json.RawMessage
	if cur, ok := raw["externalIds"]; ok {
		_ = json.Unmarshal(cur, &ext)
	}
	if ext == nil {
		ext = make(map[string]json.RawMessage)
	}
	for k, v := range raw {
		if mapped, ok := legacyFields[k]; ok {
			if _, exists := raw[mapped]; !exists {
				out[mapped] = v
			}
			continue
		}
		if extKey, ok := legacyExternalIDs[k]; ok {
			if _, exists := ext[extKey]; !exists {
				ext[extKey] = v
			}
			continue
		}
		out[k] = v
	}
	if len(ext) > 0 {
		b, err := json.Marshal(ext)
		if err == nil {
			out["externalIds"] = b
		}
	}
	return out
}

// checkRemoteError returns ErrRemoteError when the payload is an API
// error body ({"error": "..."} or {"message": "..."}).
func checkRemoteError(raw map[string]json.RawMessage) error {
	if msg, ok := raw["error"]; ok {
		var s string
		if json.Unmarshal(msg, &s) == nil && s != "" {
			return fmt.Errorf("%w: %s", ErrRemoteError, s)
		}
		return ErrRemoteError
	}
	return nil
}

// hasLegacyFields reports whether the raw object carries any field
// name from an older API schema.
func hasLegacyFields(raw map[string]json.RawMessage) bool {
	for k := range raw {
		if _, ok := legacyFields[k]; ok {
			return true
		}
		if _, ok := legacyExternalIDs[k]; ok {
			return true
		}
	}
	return false
}

// ParseDetails decodes a paper-details payload, remapping legacy field
// names first when any are present. Unknown keys would otherwise be
// silently dropped by the decoder, so the remap cannot wait for a
// decode failure.
func ParseDetails(data []byte) (*PaperDetails, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing paper details: %w", err)
	}
	if err := checkRemoteError(raw); err != nil {
		return nil, err
	}
	if hasLegacyFields(raw) {
		raw = remapLegacy(raw)
	}
	d, err := decodeDetails(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing paper details: %w", err)
	}
	if d.PaperID == "" {
		return nil, fmt.Errorf("parsing paper details: %w: missing paperId", ErrRemoteError)
	}
	return d, nil
}

func decodeDetails(raw map[string]json.RawMessage) (*PaperDetails, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var d PaperDetails
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseEdgeList decodes one citations or references page.
func ParseEdgeList(data []byte) (EdgeList, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return EdgeList{}, fmt.Errorf("parsing edge list: %w", err)
	}
	if err := checkRemoteError(raw); err != nil {
		return EdgeList{}, err
	}
	var l EdgeList
	if err := json.Unmarshal(data, &l); err != nil {
		return EdgeList{}, fmt.Errorf("parsing edge list: %w", err)
	}
	return l, nil
}

// ParsePaperData decodes a stored full record. A nil error with a
// structurally invalid record is possible; callers use Valid.
func ParsePaperData(data []byte) (*PaperData, error) {
	var p PaperData
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing paper data: %w", err)
	}
	return &p, nil
}
