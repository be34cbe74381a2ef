package extractor

import "testing"

func TestParse_DirectParseWellFormedJSON(t *testing.T) {
	raw := `{"facts":[{"category":"preference","key":"editor","value":"vim","confidence":0.9}],"summary":{"topic":"editors","content":"user prefers vim","entities":[],"projects":[]}}`
	result := Parse(raw)
	if len(result.Facts) != 1 {
		t.Fatalf("len(Facts) = %d, want 1", len(result.Facts))
	}
	if result.Facts[0].Key != "editor" {
		t.Errorf("Facts[0].Key = %q, want editor", result.Facts[0].Key)
	}
	if result.Summary.Topic != "editors" {
		t.Errorf("Summary.Topic = %q, want editors", result.Summary.Topic)
	}
}

func TestParse_ConvertsLiteralBackslashN(t *testing.T) {
	raw := `Note:\nThe extraction follows.\n{"facts":[],"summary":{"topic":"t","content":"c"}}`
	result := Parse(raw)
	if result.Summary.Topic != "t" {
		t.Errorf("Summary.Topic = %q, want t", result.Summary.Topic)
	}
}

func TestParse_StripsMarkdownFences(t *testing.T) {
	raw := "```json\n{\"facts\":[],\"summary\":{\"topic\":\"fenced\",\"content\":\"c\"}}\n```"
	result := Parse(raw)
	if result.Summary.Topic != "fenced" {
		t.Errorf("Summary.Topic = %q, want fenced", result.Summary.Topic)
	}
}

func TestParse_StripsUnclosedMarkdownFence(t *testing.T) {
	raw := "```json\n{\"facts\":[],\"summary\":{\"topic\":\"unclosed\",\"content\":\"c\"}}"
	result := Parse(raw)
	if result.Summary.Topic != "unclosed" {
		t.Errorf("Summary.Topic = %q, want unclosed", result.Summary.Topic)
	}
}

func TestParse_SkipsLeadingProse(t *testing.T) {
	raw := "Here is the extraction result:\n{\"facts\":[],\"summary\":{\"topic\":\"prose\",\"content\":\"c\"}}"
	result := Parse(raw)
	if result.Summary.Topic != "prose" {
		t.Errorf("Summary.Topic = %q, want prose", result.Summary.Topic)
	}
}

func TestParse_BalancedExtractionWithTrailingGarbage(t *testing.T) {
	raw := `{"facts":[{"category":"project","key":"repo","value":"engine","confidence":0.8}],"summary":{"topic":"t","content":"c"}}

	Let me know if you need anything else!`
	result := Parse(raw)
	if len(result.Facts) != 1 {
		t.Fatalf("len(Facts) = %d, want 1", len(result.Facts))
	}
}

func TestParse_RepairModeCompleteFactObjects(t *testing.T) {
	raw := `not valid json but contains {"category": "preference", "key": "shell", "value": "zsh", "confidence": 0.85} embedded`
	result := Parse(raw)
	if len(result.Facts) != 1 {
		t.Fatalf("len(Facts) = %d, want 1", len(result.Facts))
	}
	if result.Facts[0].Key != "shell" {
		t.Errorf("Facts[0].Key = %q, want shell", result.Facts[0].Key)
	}
}

func TestParse_RepairModeIncompleteFactObject(t *testing.T) {
	raw := `{"facts": [{"category": "decision", "key": "db", "value": "use postgres", "confidence": 0.7` // truncated, no closing
	result := Parse(raw)
	if len(result.Facts) != 1 {
		t.Fatalf("len(Facts) = %d, want 1 from incomplete-object repair", len(result.Facts))
	}
	if result.Facts[0].Value != "use postgres" {
		t.Errorf("Facts[0].Value = %q, want \"use postgres\"", result.Facts[0].Value)
	}
}

func TestParse_ExhaustedStrategiesReturnsEmpty(t *testing.T) {
	result := Parse("complete garbage with no structure at all")
	if len(result.Facts) != 0 {
		t.Errorf("len(Facts) = %d, want 0", len(result.Facts))
	}
	if result.Summary.Content != "" {
		t.Errorf("Summary.Content = %q, want empty", result.Summary.Content)
	}
}

func TestNormalizeFact_TruncatesValueAndClampsConfidence(t *testing.T) {
	longValue := ""
	for i := 0; i < 300; i++ {
		longValue += "x"
	}
	f := normalizeFact(RawFact{Category: "preference", Key: "k", Value: longValue, Confidence: 1.5}, "src-1")
	if len(f.Value) != factTruncateChars {
		t.Errorf("len(Value) = %d, want %d", len(f.Value), factTruncateChars)
	}
	if f.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped to 1.0", f.Confidence)
	}
}

func TestNormalizeFact_MapsKnownCategoryAliases(t *testing.T) {
	f := normalizeFact(RawFact{Category: "bug", Key: "k", Value: "v", Confidence: 0.8}, "src-1")
	if f.Category != "error_pattern" {
		t.Errorf("Category = %q, want error_pattern", f.Category)
	}
}

func TestNormalizeFact_UnrecognizedCategoryDefaultsToProject(t *testing.T) {
	f := normalizeFact(RawFact{Category: "something_weird", Key: "k", Value: "v", Confidence: 0.8}, "src-1")
	if f.Category != "project" {
		t.Errorf("Category = %q, want project (default)", f.Category)
	}
}

func TestNormalizeFact_StampsSourceID(t *testing.T) {
	f := normalizeFact(RawFact{Category: "preference", Key: "k", Value: "v", Confidence: 0.8}, "src-42")
	if f.SourceID != "src-42" {
		t.Errorf("SourceID = %q, want src-42", f.SourceID)
	}
}
