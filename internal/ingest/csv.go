// Package ingest parses bulk ticket uploads.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/intentflow/intentflow/pkg/models"
)

var (
	ErrMissingHeader = errors.New("csv header must contain subject and body columns")
	ErrEmptyFile     = errors.New("csv file contains no tickets")
)

// maxCSVTickets caps a single upload. Larger imports should be split.
const maxCSVTickets = 10000

// ParseTickets reads ticket drafts from CSV. The first row is a header and
// must name a subject and a body column, in any order and case; extra columns
// are ignored. Rows where both fields are empty are skipped.
func ParseTickets(r io.Reader) ([]models.TicketDraft, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	subjectCol, bodyCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "subject":
			subjectCol = i
		case "body":
			bodyCol = i
		}
	}
	if subjectCol < 0 || bodyCol < 0 {
		return nil, ErrMissingHeader
	}

	// Rows may have trailing columns missing; validate positions ourselves.
	reader.FieldsPerRecord = -1

	var drafts []models.TicketDraft
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}

		var subject, body string
		if subjectCol < len(record) {
			subject = strings.TrimSpace(record[subjectCol])
		}
		if bodyCol < len(record) {
			body = strings.TrimSpace(record[bodyCol])
		}
		if subject == "" && body == "" {
			continue
		}

		drafts = append(drafts, models.TicketDraft{Subject: subject, Body: body})
		if len(drafts) > maxCSVTickets {
			return nil, fmt.Errorf("csv exceeds the %d ticket limit", maxCSVTickets)
		}
	}

	if len(drafts) == 0 {
		return nil, ErrEmptyFile
	}
	return drafts, nil
}
