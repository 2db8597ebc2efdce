package service

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/openlms/provisioner/internal/core/domain"
)

// Column synonym sets for fuzzy header matching. Header keys are compared
// after lowering and stripping everything but letters, so "First_Name",
// "first name" and "FIRSTNAME" all land on "firstname".
var (
	firstNameCols = []string{"firstname", "givenname", "forename", "first"}
	lastNameCols  = []string{"lastname", "surname", "familyname", "last"}
	emailCols     = []string{"emailaddress", "email", "mail", "emailid", "emailaddr", "eaddress"}
	courseCols    = []string{"courseids", "courseid", "course"} // optional
)

var digitsRe = regexp.MustCompile(`\d+`)

// stripMarks removes diacritics via canonical decomposition: decompose,
// drop combining marks, recompose.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeBatch turns raw roster rows (arbitrary header casing and spelling)
// into canonical records with batch-unique usernames. Rows that are blank
// across every field are silently dropped. A *domain.SchemaError is returned
// when the required columns cannot be located.
func NormalizeBatch(raw []map[string]string) ([]domain.Record, error) {
	out := make([]domain.Record, 0, len(raw))
	counts := make(map[string]int)
	used := make(map[string]struct{})

	for _, row := range raw {
		if blankRow(row) {
			continue
		}

		cols, err := locateColumns(row)
		if err != nil {
			return nil, err
		}

		rawFirst := row[cols.first]
		rawLast := row[cols.last]
		email := cleanEmail(row[cols.email])

		base := usernameBase(rawFirst, rawLast, email)
		username := nextLocalUsername(base, counts, used)

		rec := domain.Record{
			FirstName: capWords(rawFirst),
			LastName:  capWords(rawLast),
			Email:     email,
			Username:  username,
		}
		if cols.course != "" {
			rec.CourseIDs = ParseCourseIDs(row[cols.course])
		}
		out = append(out, rec)
	}

	return out, nil
}

type columnKeys struct {
	first  string
	last   string
	email  string
	course string // "" when absent
}

func locateColumns(row map[string]string) (columnKeys, error) {
	byNorm := make(map[string]string, len(row))
	for k := range row {
		byNorm[normalizeHeaderKey(k)] = k
	}

	keys := columnKeys{
		first:  findColumn(byNorm, firstNameCols),
		last:   findColumn(byNorm, lastNameCols),
		email:  findColumn(byNorm, emailCols),
		course: findColumn(byNorm, courseCols),
	}
	if keys.first == "" || keys.last == "" || keys.email == "" {
		found := make([]string, 0, len(row))
		for k := range row {
			found = append(found, k)
		}
		sort.Strings(found)
		return columnKeys{}, &domain.SchemaError{Found: found}
	}
	return keys, nil
}

func findColumn(byNorm map[string]string, synonyms []string) string {
	for _, s := range synonyms {
		if k, ok := byNorm[s]; ok {
			return k
		}
	}
	return ""
}

func normalizeHeaderKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(k, "\ufeff", "")))
	var b strings.Builder
	for _, r := range k {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func blankRow(row map[string]string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// usernameBase derives the deterministic slug a username starts from: apply
// the text replacements to the concatenated raw names, strip diacritics, keep
// ASCII alphanumerics. Falls back to the email local part, then to "user".
func usernameBase(rawFirst, rawLast, email string) string {
	source := applyReplacements(rawFirst + rawLast)
	if base := asciiSlug(source); base != "" {
		return base
	}
	local, _, _ := strings.Cut(email, "@")
	if base := asciiSlug(local); base != "" {
		return base
	}
	return "user"
}

// nextLocalUsername extends base with the smallest unused numeric suffix
// within this batch. First occurrence keeps the bare base.
func nextLocalUsername(base string, counts map[string]int, used map[string]struct{}) string {
	suffix := counts[base]
	candidate := base
	if suffix != 0 {
		candidate = base + strconv.Itoa(suffix)
	}
	for {
		if _, taken := used[candidate]; !taken {
			break
		}
		suffix++
		candidate = base + strconv.Itoa(suffix)
	}
	counts[base] = suffix
	used[candidate] = struct{}{}
	return candidate
}

var nameReplacer = strings.NewReplacer(
	"syeda ", "s ",
	"Syeda ", "s ",
	"syed ", "s ",
	"Syed ", "s ",
)

// applyReplacements strips a leading honorific "Dr" and collapses the
// Syed/Syeda patronym prefixes so derived usernames stay short.
func applyReplacements(text string) string {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "dr. ") || strings.HasPrefix(lower, "dr ") {
		if i := strings.Index(t, " "); i >= 0 {
			t = t[i+1:]
		}
	}
	t = nameReplacer.Replace(t)
	return strings.Join(strings.Fields(t), " ")
}

// asciiSlug lowercases s, strips diacritics, and keeps only ASCII
// alphanumerics.
func asciiSlug(s string) string {
	s = removeDiacritics(s)
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func removeDiacritics(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// capWords trims, lowercases, and capitalizes each word, collapsing runs of
// whitespace.
func capWords(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	caser := cases.Title(language.Und)
	return caser.String(strings.Join(strings.Fields(s), " "))
}

// cleanEmail removes embedded spaces and surrounding quotes, then lowercases.
func cleanEmail(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	return strings.ToLower(s)
}

// ParseCourseIDs extracts every digit sequence from a free-text course field,
// deduplicated, left-to-right order preserved.
func ParseCourseIDs(value string) []int64 {
	matches := digitsRe.FindAllString(value, -1)
	seen := make(map[int64]struct{}, len(matches))
	out := make([]int64, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
