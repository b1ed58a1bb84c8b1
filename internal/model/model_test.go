package model

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestNewRelationSet_Dedupes(t *testing.T) {
	s := NewRelationSet("a", "", "b", "a", "c", "b")
	if !slices.Equal(s.IDs, []string{"a", "b", "c"}) {
		t.Errorf("IDs = %v, want [a b c]", s.IDs)
	}
	if s.Len() != 3 || !s.Contains("b") || s.Contains("") || s.Contains("z") {
		t.Errorf("set behaves wrongly: %+v", s)
	}
}

func TestLegacyRelationSet(t *testing.T) {
	s := LegacyRelationSet()
	if s.Len() != 0 {
		t.Errorf("legacy Len() = %d, want 0", s.Len())
	}
	n := s.Normalized()
	if n.Legacy || n.IDs == nil || len(n.IDs) != 0 {
		t.Errorf("Normalized() = %+v, want empty non-nil set", n)
	}
}

func TestUserSummary_HidesLegacyCounts(t *testing.T) {
	u := &User{
		Username:  "alice",
		Followers: LegacyRelationSet(),
		Following: NewRelationSet("x", "y"),
	}
	sum := u.Summary()
	if sum.Followers != 0 || sum.Following != 2 {
		t.Errorf("Summary() followers/following = %d/%d, want 0/2", sum.Followers, sum.Following)
	}
}

func TestParseVideoID(t *testing.T) {
	tests := []struct {
		raw     string
		want    VideoID
		wantErr bool
	}{
		{"demo-1", "demo-1", false},
		{"  64b7f0c2a1e4d3b2c1a09f8e ", "64b7f0c2a1e4d3b2c1a09f8e", false},
		{"snake_case_ID", "snake_case_ID", false},
		{"", "", true},
		{"   ", "", true},
		{"../etc/passwd", "", true},
		{"has space", "", true},
		{strings.Repeat("a", maxVideoIDLength+1), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseVideoID(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVideoID(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVideoID(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "now"},
		{30 * time.Second, "now"},
		{time.Minute, "1m"},
		{59 * time.Minute, "59m"},
		{time.Hour, "1h"},
		{23 * time.Hour, "23h"},
		{24 * time.Hour, "1d"},
		{6 * 24 * time.Hour, "6d"},
		{7 * 24 * time.Hour, "1w"},
		{30 * 24 * time.Hour, "4w"},
		{-time.Hour, "now"},
	}
	for _, tt := range tests {
		if got := RelativeTime(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("RelativeTime(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
