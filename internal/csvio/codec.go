// Package csvio reads uploaded rosters and renders result rosters, keeping
// the fixed column order spreadsheets expect.
package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openlms/provisioner/internal/core/domain"
)

// Fieldnames is the fixed download column order.
var Fieldnames = []string{
	"First Name", "Last Name", "Email Address", "Username", "Password",
	"Course IDs",
	"Status", "Enrol Status", "Suspend Status",
	"Existing First Name", "Existing Last Name", "Existing Username", "Existing Email", "Existing ID",
}

// utf8BOM keeps Excel from misreading the file as Latin-1.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadRoster parses an uploaded CSV into raw header-keyed rows. The first
// record is the header; a leading UTF-8 BOM is skipped. Short rows are padded
// with empty strings.
func ReadRoster(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(newBOMSkippingReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []map[string]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteRoster renders records as a UTF-8 CSV document with a leading BOM and
// the fixed Fieldnames column order.
func WriteRoster(records []domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(Fieldnames); err != nil {
		return nil, err
	}
	for i := range records {
		if err := w.Write(recordFields(&records[i])); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func recordFields(r *domain.Record) []string {
	existingID := ""
	if r.ExistingID != 0 {
		existingID = strconv.FormatInt(r.ExistingID, 10)
	}
	return []string{
		r.FirstName, r.LastName, r.Email, r.Username, r.Password,
		joinCourseIDs(r.CourseIDs),
		r.Status, r.EnrolStatus, r.SuspendStatus,
		r.ExistingFirstName, r.ExistingLastName, r.ExistingUsername, r.ExistingEmail, existingID,
	}
}

func joinCourseIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
