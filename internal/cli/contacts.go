package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadContacts читает список обзвона из CSV.
//
// Ожидаются колонки name и phone. Первая строка считается заголовком,
// если в ней есть колонка "phone"; тогда порядок колонок берётся из неё.
// Без заголовка: name, phone. Пустые строки пропускаются.
func ReadContacts(r io.Reader) ([]Contact, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	nameCol, phoneCol := 0, 1
	var contacts []Contact
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		if line == 1 {
			if n, p, ok := headerColumns(record); ok {
				nameCol, phoneCol = n, p
				continue
			}
		}
		if isBlank(record) {
			continue
		}

		c := Contact{Phone: field(record, phoneCol)}
		if nameCol >= 0 {
			c.Name = field(record, nameCol)
		}
		if c.Phone == "" {
			return nil, fmt.Errorf("line %d: phone is empty", line)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// headerColumns ищет колонки name и phone в заголовке.
func headerColumns(record []string) (nameCol, phoneCol int, ok bool) {
	nameCol, phoneCol = -1, -1
	for i, h := range record {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "phone", "phone_number", "number":
			phoneCol = i
		}
	}
	return nameCol, phoneCol, phoneCol >= 0
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
