package qdrant

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys of a track point.
const (
	PayloadTrackID   = "track_id"
	PayloadTitle     = "title"
	PayloadArtistID  = "artist_id"
	PayloadSHS       = "shs"
	PayloadDuplicate = "duplicate"
	PayloadDeezer    = "dzr_mapped"

	// PayloadEvidence lists the evidence sources with a vector on the point.
	PayloadEvidence = "evidence"

	// creditsPrefix prefixes the per-role credited artist lists,
	// e.g. credits_composer.
	creditsPrefix = "credits_"
)

// trackNamespace scopes deterministic point ids derived from track ids.
var trackNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("covereval/msd-track"))

// PointID returns the deterministic point id of a track.
func PointID(track string) string {
	return uuid.NewSHA1(trackNamespace, []byte(track)).String()
}

// CreditsKey returns the payload key holding the artists credited in roleType.
func CreditsKey(roleType string) string {
	return creditsPrefix + strings.ToLower(strings.ReplaceAll(roleType, " ", "_"))
}

// TrackPayload is the metadata stored with a track point.
type TrackPayload struct {
	TrackID  string
	Title    string
	ArtistID string
	Evidence []string
	Fields   map[string]string
	Credits  map[string][]string
}

// HasEvidence reports whether the track carries a vector for source.
func (p TrackPayload) HasEvidence(source string) bool {
	for _, e := range p.Evidence {
		if e == source {
			return true
		}
	}
	return false
}

// extractPayload extracts a TrackPayload from a Qdrant payload map.
// Scalar values are also exposed through Fields.
func extractPayload(payload map[string]*qdrant.Value) TrackPayload {
	result := TrackPayload{
		TrackID:  getStringValue(payload, PayloadTrackID),
		Title:    getStringValue(payload, PayloadTitle),
		ArtistID: getStringValue(payload, PayloadArtistID),
		Evidence: getStringSliceValue(payload, PayloadEvidence),
		Fields:   make(map[string]string),
		Credits:  make(map[string][]string),
	}

	for key, v := range payload {
		if strings.HasPrefix(key, creditsPrefix) {
			result.Credits[key] = getStringSliceValue(payload, key)
			continue
		}
		if s, ok := scalarString(v); ok {
			result.Fields[key] = s
		}
	}

	return result
}

func scalarString(v *qdrant.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	switch k := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue, true
	case *qdrant.Value_IntegerValue:
		return fmt.Sprintf("%d", k.IntegerValue), true
	case *qdrant.Value_DoubleValue:
		return fmt.Sprintf("%g", k.DoubleValue), true
	case *qdrant.Value_BoolValue:
		return fmt.Sprintf("%t", k.BoolValue), true
	}
	return "", false
}

// Helper functions to extract values from Qdrant payload

func getStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}

func getStringSliceValue(payload map[string]*qdrant.Value, key string) []string {
	if v, ok := payload[key]; ok {
		if lv, ok := v.Kind.(*qdrant.Value_ListValue); ok {
			result := make([]string, 0, len(lv.ListValue.Values))
			for _, item := range lv.ListValue.Values {
				if sv, ok := item.Kind.(*qdrant.Value_StringValue); ok {
					result = append(result, sv.StringValue)
				}
			}
			return result
		}
	}
	return nil
}
