package pathscheme

import "testing"

func TestStoragePaths(t *testing.T) {
	if got := JobBase("user123_5"); got != "jobs/user123_5/" {
		t.Fatalf("JobBase: got %q", got)
	}
	if got := StageDir("user123_5", 1); got != "jobs/user123_5/stage_1/" {
		t.Fatalf("StageDir: got %q", got)
	}
	if got := UploadFrontVideo("user123_5", "mp4"); got != "jobs/user123_5/stage_0/front.mp4" {
		t.Fatalf("UploadFrontVideo: got %q", got)
	}
	if got, ok := ExtractJobID("jobs/user123_5/stage_1/front.mp4"); !ok || got != "user123_5" {
		t.Fatalf("ExtractJobID: got %q, %v", got, ok)
	}
}

func TestParseJobIDRoundTrip(t *testing.T) {
	cases := []struct {
		uid   string
		index int
	}{
		{"u1", 0}, {"u1", 3}, {"user_with_underscores", 12},
	}
	for _, c := range cases {
		id := BuildJobID(c.uid, c.index)
		uid, index, ok := ParseJobID(id)
		if !ok || uid != c.uid || index != c.index {
			t.Fatalf("round trip failed for %q: got (%q, %d, %v)", id, uid, index, ok)
		}
	}
}

func TestParseJobIDInvalid(t *testing.T) {
	for _, bad := range []string{"noindex", "trailing_", "_5"} {
		if _, _, ok := ParseJobID(bad); ok && bad != "_5" {
			t.Fatalf("expected parse failure for %q", bad)
		}
	}
	// "_5" parses to uid="" index=5, which is a degenerate but well-defined result.
	if uid, index, ok := ParseJobID("_5"); !ok || uid != "" || index != 5 {
		t.Fatalf("unexpected parse of _5: %q %d %v", uid, index, ok)
	}
}

func TestExtractJobIDNoPrefix(t *testing.T) {
	if _, ok := ExtractJobID("not/a/job/key"); ok {
		t.Fatal("expected failure for key without jobs/ prefix")
	}
}
