package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/openlms/provisioner/internal/core/domain"
)

func row(first, last, email, courses string) map[string]string {
	return map[string]string{
		"First Name":    first,
		"Last Name":     last,
		"Email Address": email,
		"Course IDs":    courses,
	}
}

func TestNormalizeBatchBasics(t *testing.T) {
	records, err := NormalizeBatch([]map[string]string{
		row("  ada   mary ", "LOVELACE", ` "Ada.Lovelace@Example.EDU" `, "101, 102, 101"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.FirstName != "Ada Mary" {
		t.Errorf("first name: got %q", rec.FirstName)
	}
	if rec.LastName != "Lovelace" {
		t.Errorf("last name: got %q", rec.LastName)
	}
	if rec.Email != "ada.lovelace@example.edu" {
		t.Errorf("email: got %q", rec.Email)
	}
	if rec.Username != "adamarylovelace" {
		t.Errorf("username: got %q", rec.Username)
	}
	if !reflect.DeepEqual(rec.CourseIDs, []int64{101, 102}) {
		t.Errorf("course ids: got %v", rec.CourseIDs)
	}
}

func TestNormalizeBatchFuzzyHeaders(t *testing.T) {
	records, err := NormalizeBatch([]map[string]string{
		{
			"\ufeffGiven_Name": "Grace",
			"SURNAME":          "Hopper",
			"E-Mail":           "grace@example.edu",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Username != "gracehopper" {
		t.Errorf("username: got %q", records[0].Username)
	}
	if len(records[0].CourseIDs) != 0 {
		t.Errorf("expected no course ids, got %v", records[0].CourseIDs)
	}
}

func TestNormalizeBatchSchemaError(t *testing.T) {
	_, err := NormalizeBatch([]map[string]string{
		{"Nickname": "ada", "Email Address": "ada@example.edu"},
	})

	var se *domain.SchemaError
	if err == nil {
		t.Fatal("expected schema error")
	}
	if !errors.As(err, &se) {
		t.Fatalf("expected *domain.SchemaError, got %T", err)
	}
	msg := se.Error()
	if !strings.Contains(msg, "Nickname") || !strings.Contains(msg, "Email Address") {
		t.Errorf("error should name found columns: %q", msg)
	}
}

func TestNormalizeBatchDropsBlankRows(t *testing.T) {
	records, err := NormalizeBatch([]map[string]string{
		row("Ada", "Lovelace", "ada@example.edu", ""),
		row("", "  ", "", ""),
		row("Grace", "Hopper", "grace@example.edu", ""),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected blank row dropped, got %d records", len(records))
	}
}

func TestNormalizeBatchDiacritics(t *testing.T) {
	records, err := NormalizeBatch([]map[string]string{
		row("José", " O'Brien ", "jose@example.edu", ""),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := records[0].Username
	if got != "joseobrien" {
		t.Errorf("username: got %q, want %q", got, "joseobrien")
	}
	if !regexp.MustCompile(`^[a-z0-9]+$`).MatchString(got) {
		t.Errorf("username %q contains characters outside [a-z0-9]", got)
	}
}

func TestNormalizeBatchReplacements(t *testing.T) {
	tests := []struct {
		first, last string
		want        string
	}{
		{"Dr. Jonas", "Salk", "jonassalk"},
		{"dr maria", "curie", "mariacurie"},
		{"Syed Ahmed", "Khan", "sahmedkhan"},
		{"Syeda Fatima", "Ali", "sfatimaali"},
	}
	for _, tt := range tests {
		records, err := NormalizeBatch([]map[string]string{
			row(tt.first, tt.last, "x@example.edu", ""),
		})
		if err != nil {
			t.Fatalf("%s %s: unexpected error: %v", tt.first, tt.last, err)
		}
		if got := records[0].Username; got != tt.want {
			t.Errorf("%s %s: username %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}

func TestNormalizeBatchUsernameFallbacks(t *testing.T) {
	records, err := NormalizeBatch([]map[string]string{
		row("李", "华", "li.hua@example.edu", ""), // no ASCII alnum left after slugging
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := records[0].Username; got != "lihua" {
		t.Errorf("expected email local-part fallback %q, got %q", "lihua", got)
	}

	records, err = NormalizeBatch([]map[string]string{
		row("李", "华", "中文@example.edu", ""),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := records[0].Username; got != "user" {
		t.Errorf("expected literal fallback %q, got %q", "user", got)
	}
}

func TestNormalizeBatchDuplicateBases(t *testing.T) {
	records, err := NormalizeBatch([]map[string]string{
		row("John", "Doe", "jd1@example.edu", ""),
		row("John", "Doe", "jd2@example.edu", ""),
		row("John", "Doe", "jd3@example.edu", ""),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := []string{records[0].Username, records[1].Username, records[2].Username}
	want := []string{"johndoe", "johndoe1", "johndoe2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("usernames %v, want %v", got, want)
	}

	seen := make(map[string]struct{})
	for _, u := range got {
		if _, dup := seen[u]; dup {
			t.Fatalf("duplicate username %q in batch", u)
		}
		seen[u] = struct{}{}
	}
}

func TestParseCourseIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []int64
	}{
		{"", nil},
		{"101", []int64{101}},
		{"101, 102; 103 | 101", []int64{101, 102, 103}},
		{"course-42 and 7", []int64{42, 7}},
		{"no digits here", nil},
	}
	for _, tt := range tests {
		got := ParseCourseIDs(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCourseIDs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
