package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	apperrors "tally/internal/errors"
	"tally/internal/models"
)

// DecodeCategoryCSV parses a category import file. The header row must
// contain Name and Type columns; Parent is optional. Column order does not
// matter and header matching is case-insensitive.
func DecodeCategoryCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidImport, fmt.Sprintf("Malformed CSV: %v", err))
	}
	if len(records) == 0 {
		return nil, apperrors.ErrEmptyImport
	}

	nameCol, typeCol, parentCol := -1, -1, -1
	for i, header := range records[0] {
		switch strings.ToLower(strings.TrimSpace(header)) {
		case "name":
			nameCol = i
		case "type":
			typeCol = i
		case "parent":
			parentCol = i
		}
	}
	if nameCol < 0 || typeCol < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidImport, "CSV must have Name and Type columns")
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		row := Row{Line: i + 2}
		if nameCol < len(record) {
			row.Name = record[nameCol]
		}
		if typeCol < len(record) {
			row.Type = record[typeCol]
		}
		if parentCol >= 0 && parentCol < len(record) {
			row.Parent = record[parentCol]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// EncodeCategoryCSV writes categories as a Name,Type,Parent file, resolving
// parent ids back to parent names.
func EncodeCategoryCSV(w io.Writer, categories []models.Category) error {
	nameByID := make(map[string]string, len(categories))
	for _, c := range categories {
		nameByID[c.ID] = c.Name
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Name", "Type", "Parent"}); err != nil {
		return err
	}
	for _, c := range categories {
		parent := ""
		if c.ParentID != nil {
			parent = nameByID[*c.ParentID]
		}
		if err := writer.Write([]string{c.Name, string(c.Type), parent}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// DecodePayeeCSV parses a payee import file: a Name header followed by one
// name per row.
func DecodePayeeCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidImport, fmt.Sprintf("Malformed CSV: %v", err))
	}
	if len(records) == 0 {
		return nil, apperrors.ErrEmptyImport
	}

	nameCol := -1
	for i, header := range records[0] {
		if strings.ToLower(strings.TrimSpace(header)) == "name" {
			nameCol = i
		}
	}
	if nameCol < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidImport, "CSV must have a Name column")
	}

	names := make([]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if nameCol < len(record) {
			names = append(names, record[nameCol])
		}
	}
	return names, nil
}

// EncodePayeeCSV writes payees as a single-column Name file.
func EncodePayeeCSV(w io.Writer, payees []models.Payee) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Name"}); err != nil {
		return err
	}
	for _, p := range payees {
		if err := writer.Write([]string{p.Name}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
