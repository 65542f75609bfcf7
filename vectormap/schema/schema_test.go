package schema

import (
	"encoding/json"
	"testing"

	"social-nav/core/vectormap"
)

func TestBuildHasTopLevelSegments(t *testing.T) {
	s := Build()
	if s.Properties == nil {
		t.Fatalf("Build() schema has no properties")
	}
	if _, ok := s.Properties.Get("segments"); !ok {
		t.Fatalf("Build() schema missing segments property")
	}
}

func TestManifestDocumentMirrorsVectormap(t *testing.T) {
	// The map file format is defined once by vectormap and mirrored here
	// for reflection; decode the same manifest into both shapes to catch
	// drift if either side's JSON tags change.
	raw := []byte(`{"segments":[{"p0":{"x":0,"y":0},"p1":{"x":1,"y":1}}]}`)

	var viaVectormap vectormap.MapManifest
	if err := json.Unmarshal(raw, &viaVectormap); err != nil {
		t.Fatalf("unmarshal into vectormap.MapManifest: %v", err)
	}
	if len(viaVectormap.Segments) != 1 || viaVectormap.Segments[0].P1.X != 1 || viaVectormap.Segments[0].P1.Y != 1 {
		t.Fatalf("vectormap.MapManifest decoded wrong segments: %+v", viaVectormap.Segments)
	}

	var viaSchema manifestDocument
	if err := json.Unmarshal(raw, &viaSchema); err != nil {
		t.Fatalf("unmarshal into manifestDocument: %v", err)
	}
	if len(viaSchema.Segments) != 1 {
		t.Fatalf("manifestDocument decoded %d segments, want 1", len(viaSchema.Segments))
	}
	if viaSchema.Segments[0].P1.X != 1 || viaSchema.Segments[0].P1.Y != 1 {
		t.Fatalf("manifestDocument decoded wrong point: %+v", viaSchema.Segments[0].P1)
	}
}
