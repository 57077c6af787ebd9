package placeholder

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestScan(t *testing.T) {
	t.Run("preserves first occurrence order and skips repeats", func(t *testing.T) {
		got := Scan("A/*X*/B/*Y*/C/*X*/")
		want := []Placeholder{
			{Name: "X", Marker: "/*X*/", Index: 0},
			{Name: "Y", Marker: "/*Y*/", Index: 1},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Scan() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty input yields empty result", func(t *testing.T) {
		got := Scan("")
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("malformed markers are ignored", func(t *testing.T) {
		got := Scan("/*Open and /* spaced */ and /**/ and /*Ok*/")
		assert.Equal(t, []string{"Ok"}, Names(got))
	})

	t.Run("case is significant", func(t *testing.T) {
		got := Scan("/*name*/ /*Name*/ /*NAME*/")
		assert.Equal(t, []string{"name", "Name", "NAME"}, Names(got))
	})

	t.Run("underscores and digits are word characters", func(t *testing.T) {
		got := Scan(`<p>/*Offer_Summary2*/</p>`)
		assert.Equal(t, []string{"Offer_Summary2"}, Names(got))
	})

	t.Run("markers adjacent to regex metacharacters", func(t *testing.T) {
		got := Scan(`(a+b)*/*Total*/$^[x]`)
		assert.Equal(t, []string{"Total"}, Names(got))
	})
}

func TestScan_Idempotent(t *testing.T) {
	docs := []string{
		"",
		"no markers here",
		"<h1>/*Title*/</h1><p>/*Body*/ /*Title*/</p>",
		"/*A*//*B*//*A*//*C*/",
	}
	for _, doc := range docs {
		first := Scan(doc)
		second := Scan(doc)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Scan(%q) not idempotent:\n%s", doc, diff)
		}
	}
}

func TestScan_NoDuplicates(t *testing.T) {
	got := Scan("/*A*/ /*B*/ /*A*/ /*B*/ /*C*/ /*A*/")
	seen := map[string]bool{}
	for i, p := range got {
		assert.False(t, seen[p.Name], "duplicate %s", p.Name)
		seen[p.Name] = true
		assert.Equal(t, i, p.Index)
	}
	assert.Len(t, got, 3)
}

func TestMarker(t *testing.T) {
	assert.Equal(t, "/*Company*/", Marker("Company"))
}

func TestContains(t *testing.T) {
	phs := Scan("/*A*/ /*B*/")
	assert.True(t, Contains(phs, "A"))
	assert.False(t, Contains(phs, "C"))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "Company_Name", SafeName("Company Name"))
	assert.Equal(t, "a_b_c", SafeName("a-b.c"))
	assert.Equal(t, "Total", SafeName("Total"))
}

func TestSurrounding(t *testing.T) {
	doc := "Dear /*Name*/, welcome"

	assert.Equal(t, doc, Surrounding(doc, "Name", 100))
	assert.Equal(t, "ar /*Name*/, w", Surrounding(doc, "Name", 3))
	assert.Empty(t, Surrounding(doc, "Other", 10))

	// never splits a multi-byte rune
	assert.Equal(t, "/*X*/", Surrounding("é/*X*/é", "X", 1))
}
