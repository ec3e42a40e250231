package sheetsclient

import (
	"fmt"
	"strings"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

// Expected column names in a staff roster sheet
var rosterFields = []string{
	"Name",
	"Email",
	"Role",
}

// Optional column names, read when present
var optionalRosterFields = []string{
	"Nickname",
	"Phone",
	"Additional roles",
}

// RosterEntry is one staff member listed in a roster sheet
type RosterEntry struct {
	Row      int
	Name     string
	Nickname string
	Email    string
	Phone    string
	Role     model.Role
	Roles    []model.Role
}

// ListRoster reads staff accounts from a spreadsheet tab
func (c *Client) ListRoster(spreadsheetID, tab string) ([]RosterEntry, error) {
	values, err := c.GetValues(spreadsheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("failed to get roster data: %w", err)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	entries, err := parseRoster(values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	return entries, nil
}

// parseRoster converts raw spreadsheet data into roster entries
func parseRoster(raw [][]interface{}) ([]RosterEntry, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("no header row found")
	}

	headerRow := raw[0]
	fieldIndexes := make(map[string]int)

	for _, field := range rosterFields {
		index := findColumnIndex(headerRow, field)
		if index == -1 {
			return nil, fmt.Errorf("missing required field in header: %s", field)
		}
		fieldIndexes[field] = index
	}
	for _, field := range optionalRosterFields {
		if index := findColumnIndex(headerRow, field); index != -1 {
			fieldIndexes[field] = index
		}
	}

	getField := func(field string, row []interface{}) string {
		index, ok := fieldIndexes[field]
		if !ok {
			return ""
		}
		return cellString(row, index)
	}

	entries := make([]RosterEntry, 0, len(raw)-1)
	for i := 1; i < len(raw); i++ {
		row := raw[i]

		name := getField("Name", row)
		// Skip empty rows
		if name == "" {
			continue
		}

		role := model.Role(strings.ToLower(getField("Role", row)))
		if !role.IsValid() {
			return nil, fmt.Errorf("invalid role %q in row %d", role, i+1)
		}

		var extra []model.Role
		for _, r := range strings.Split(getField("Additional roles", row), ",") {
			r = strings.ToLower(strings.TrimSpace(r))
			if r == "" {
				continue
			}
			if !model.Role(r).IsValid() {
				return nil, fmt.Errorf("invalid additional role %q in row %d", r, i+1)
			}
			extra = append(extra, model.Role(r))
		}

		entries = append(entries, RosterEntry{
			Row:      i + 1,
			Name:     name,
			Nickname: getField("Nickname", row),
			Email:    model.NormalizeEmail(getField("Email", row)),
			Phone:    getField("Phone", row),
			Role:     role,
			Roles:    extra,
		})
	}

	return entries, nil
}
