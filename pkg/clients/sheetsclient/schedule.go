package sheetsclient

import (
	"fmt"
	"strings"
	"time"
)

const (
	tabDateLayout = "Mon Jan 02 2006"
	notesColumn   = "Notes"
	headerRowIdx  = 2
)

// fixed columns written before the volunteer columns
var scheduleColumns = []string{"Date", "Time", "Shift", "Location", "Places"}

// PublishedScheduleRow is one shift in the published schedule
type PublishedScheduleRow struct {
	Date       string   // Format: "Mon Jan 02 2006"
	Time       string   // Format: "15:04-15:04"
	Title      string   // Shift title
	Location   string   // Shift location, may be blank
	Places     string   // "assigned/max", or just the assigned count when unbounded
	Volunteers []string // Display names of signed-up volunteers
}

// PublishedSchedule is the shift schedule for a date range
type PublishedSchedule struct {
	From string // Format: "2006-01-02", inclusive
	To   string // Format: "2006-01-02", inclusive
	Rows []PublishedScheduleRow
}

// PublishSchedule writes the schedule to a tab titled after its date range, creating the tab
// if needed. Rewriting an existing tab keeps whatever was typed into its Notes column.
func (c *Client) PublishSchedule(spreadsheetID string, schedule *PublishedSchedule) error {
	tabTitle, err := generateTabTitle(schedule.From, schedule.To)
	if err != nil {
		return fmt.Errorf("failed to generate tab title: %w", err)
	}

	exists, err := c.SheetExists(spreadsheetID, tabTitle)
	if err != nil {
		return err
	}

	var existing [][]interface{}
	if exists {
		existing, err = c.GetValues(spreadsheetID, fmt.Sprintf("%s!A1:ZZ", tabTitle))
		if err != nil {
			return fmt.Errorf("failed to read existing tab data: %w", err)
		}
		if err := c.ClearValues(spreadsheetID, fmt.Sprintf("%s!A1:ZZ", tabTitle)); err != nil {
			return err
		}
	} else {
		if _, err := c.CreateSheet(spreadsheetID, tabTitle); err != nil {
			return fmt.Errorf("failed to create tab: %w", err)
		}
	}

	values := buildScheduleValues(schedule, existingNotes(existing))
	if err := c.UpdateValues(spreadsheetID, fmt.Sprintf("%s!A1", tabTitle), values); err != nil {
		return fmt.Errorf("failed to write schedule: %w", err)
	}

	return nil
}

// generateTabTitle creates a tab title in the format "Sun Aug 24 2025 - Sun Nov 09 2025"
func generateTabTitle(from, to string) (string, error) {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return "", fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return "", fmt.Errorf("invalid end date: %w", err)
	}
	if end.Before(start) {
		return "", fmt.Errorf("end date %s is before start date %s", to, from)
	}

	return fmt.Sprintf("%s - %s", start.Format(tabDateLayout), end.Format(tabDateLayout)), nil
}

func rowKey(date, timeRange, title string) string {
	return date + "|" + timeRange + "|" + title
}

// existingNotes maps each previously published shift to the text in its Notes column
func existingNotes(existing [][]interface{}) map[string]string {
	notes := make(map[string]string)
	if len(existing) <= headerRowIdx {
		return notes
	}

	header := existing[headerRowIdx]
	dateCol := findColumnIndex(header, "Date")
	timeCol := findColumnIndex(header, "Time")
	shiftCol := findColumnIndex(header, "Shift")
	notesCol := findColumnIndex(header, notesColumn)
	if dateCol == -1 || timeCol == -1 || shiftCol == -1 || notesCol == -1 {
		return notes
	}

	for _, row := range existing[headerRowIdx+1:] {
		note := cellString(row, notesCol)
		if note == "" {
			continue
		}
		notes[rowKey(cellString(row, dateCol), cellString(row, timeCol), cellString(row, shiftCol))] = note
	}
	return notes
}

// buildScheduleValues lays out the tab: two blank rows, a header, then one row per shift
func buildScheduleValues(schedule *PublishedSchedule, notes map[string]string) [][]interface{} {
	maxVolunteers := 0
	for _, row := range schedule.Rows {
		if len(row.Volunteers) > maxVolunteers {
			maxVolunteers = len(row.Volunteers)
		}
	}

	header := make([]interface{}, 0, len(scheduleColumns)+maxVolunteers+1)
	for _, col := range scheduleColumns {
		header = append(header, col)
	}
	for i := 0; i < maxVolunteers; i++ {
		header = append(header, fmt.Sprintf("Volunteer %d", i+1))
	}
	header = append(header, notesColumn)

	allRows := [][]interface{}{
		{}, // Row 1 (empty)
		{}, // Row 2 (empty)
		header,
	}

	for _, row := range schedule.Rows {
		sheetRow := []interface{}{row.Date, row.Time, row.Title, row.Location, row.Places}
		for i := 0; i < maxVolunteers; i++ {
			if i < len(row.Volunteers) {
				sheetRow = append(sheetRow, row.Volunteers[i])
			} else {
				sheetRow = append(sheetRow, "")
			}
		}
		sheetRow = append(sheetRow, notes[rowKey(row.Date, row.Time, row.Title)])
		allRows = append(allRows, sheetRow)
	}

	return allRows
}

// findColumnIndex finds the index of a column by its header name
func findColumnIndex(header []interface{}, columnName string) int {
	for i, cell := range header {
		if str, ok := cell.(string); ok && strings.TrimSpace(str) == columnName {
			return i
		}
	}
	return -1
}

func cellString(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	if str, ok := row[idx].(string); ok {
		return strings.TrimSpace(str)
	}
	return ""
}
