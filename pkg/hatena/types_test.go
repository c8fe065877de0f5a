package hatena

import (
	"encoding/json"
	"testing"
)

func TestStarItem_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		numeric      bool
		contribution int
		expectError  bool
	}{
		{"bare count", `3`, true, 3, false},
		{"single", `1`, true, 1, false},
		{"float count", `2.0`, true, 2, false},
		{"negative count", `-4`, true, 0, false},
		{"named star", `{"quote":"a","name":"b"}`, false, 1, false},
		{"named star with extra fields", `{"quote":"","name":"firststar_hateno","count":9}`, false, 1, false},
		{"quoted count", `"2"`, true, 2, false},
		{"null counts zero", `null`, true, 0, false},
		{"string is rejected", `"yellow"`, false, 0, true},
		{"infinity is rejected", `"Inf"`, false, 0, true},
		{"array is rejected", `[1]`, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var item StarItem
			err := json.Unmarshal([]byte(tt.input), &item)

			if tt.expectError {
				if err == nil {
					t.Errorf("Unmarshal(%s) expected error, got %+v", tt.input, item)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if item.IsNumeric() != tt.numeric {
				t.Errorf("IsNumeric() = %v, want %v", item.IsNumeric(), tt.numeric)
			}
			if got := item.Contribution(); got != tt.contribution {
				t.Errorf("Contribution() = %d, want %d", got, tt.contribution)
			}
		})
	}
}

func TestStarEntry_Decode(t *testing.T) {
	body := `{"entries":[{
		"uri":"https://b.hatena.ne.jp/firststar_hateno/20231231#bookmark-123",
		"stars":[3,{"quote":"a","name":"b"}],
		"colored_stars":[{"color":"red","stars":[2,{"quote":"","name":"c"}]}]
	}]}`

	var page StarPage
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(page.Entries))
	}

	entry := page.Entries[0]
	if len(entry.Stars) != 2 {
		t.Fatalf("len(Stars) = %d, want 2", len(entry.Stars))
	}
	if entry.Stars[0].Contribution()+entry.Stars[1].Contribution() != 4 {
		t.Error("plain stars should contribute 4")
	}
	if len(entry.ColoredStars) != 1 || entry.ColoredStars[0].Color != "red" {
		t.Fatalf("ColoredStars = %+v, want one red group", entry.ColoredStars)
	}
}

func TestStarPage_DropsMalformedEntries(t *testing.T) {
	body := `{"entries":[
		{"uri":"https://b.hatena.ne.jp/firststar_hateno/20240101#bookmark-1","stars":[5]},
		{"uri":"https://b.hatena.ne.jp/firststar_hateno/20240101#bookmark-2","stars":[null]},
		{"uri":"https://b.hatena.ne.jp/firststar_hateno/20240101#bookmark-3","stars":["2"]},
		{"uri":"https://b.hatena.ne.jp/firststar_hateno/20240101#bookmark-4","stars":[true]},
		{"uri":"https://b.hatena.ne.jp/firststar_hateno/20240101#bookmark-5","colored_stars":[{"color":"red","stars":"x"}]}
	]}`

	var page StarPage
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(page.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(page.Entries))
	}
	if page.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", page.Malformed)
	}

	want := []int{5, 0, 2}
	for i, entry := range page.Entries {
		if got := entry.Stars[0].Contribution(); got != want[i] {
			t.Errorf("entry %d contribution = %d, want %d", i, got, want[i])
		}
	}
}

func TestStarPage_RejectsBrokenDocument(t *testing.T) {
	var page StarPage
	if err := json.Unmarshal([]byte(`{"entries":[`), &page); err == nil {
		t.Error("Expected error for truncated document")
	}
}

func TestStarItem_MarshalRoundTrip(t *testing.T) {
	items := []StarItem{Numeric(5), Named("nice", "firststar_hateno")}

	data, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `[5,{"quote":"nice","name":"firststar_hateno"}]` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected ID
	}{
		{`"4747184421499337007"`, "4747184421499337007"},
		{`4747184421499337007`, "4747184421499337007"},
		{`null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var id ID
			if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if id != tt.expected {
				t.Errorf("ID = %q, want %q", id, tt.expected)
			}
		})
	}
}

func TestBookmarksPage_HasNext(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected bool
	}{
		{"next present", `{"item":{"bookmarks":[]},"pager":{"next":{"label":"next","page_path":"/x?page=2"}}}`, true},
		{"next null", `{"item":{"bookmarks":[]},"pager":{"next":null}}`, false},
		{"next absent", `{"item":{"bookmarks":[]},"pager":{}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var page BookmarksPage
			if err := json.Unmarshal([]byte(tt.body), &page); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got := page.HasNext(); got != tt.expected {
				t.Errorf("HasNext() = %v, want %v", got, tt.expected)
			}
		})
	}
}
