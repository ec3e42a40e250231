package sheetsclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTabTitle(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		want    string
		wantErr bool
	}{
		{
			name: "single day",
			from: "2025-01-05",
			to:   "2025-01-05",
			want: "Sun Jan 05 2025 - Sun Jan 05 2025",
		},
		{
			name: "range",
			from: "2025-08-24",
			to:   "2025-11-09",
			want: "Sun Aug 24 2025 - Sun Nov 09 2025",
		},
		{
			name:    "invalid start",
			from:    "invalid",
			to:      "2025-01-05",
			wantErr: true,
		},
		{
			name:    "end before start",
			from:    "2025-01-12",
			to:      "2025-01-05",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generateTabTitle(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindColumnIndex(t *testing.T) {
	header := []interface{}{"Date", "Time", "Shift", "Location", "Places", "Volunteer 1", " Notes "}

	assert.Equal(t, 0, findColumnIndex(header, "Date"))
	assert.Equal(t, 2, findColumnIndex(header, "Shift"))
	assert.Equal(t, 6, findColumnIndex(header, "Notes"))
	assert.Equal(t, -1, findColumnIndex(header, "Team lead"))
}

func TestBuildScheduleValues(t *testing.T) {
	schedule := &PublishedSchedule{
		From: "2025-03-01",
		To:   "2025-03-31",
		Rows: []PublishedScheduleRow{
			{Date: "Sat Mar 01 2025", Time: "10:00-12:00", Title: "Drop-in", Places: "2/3", Volunteers: []string{"Alice", "Bob"}},
			{Date: "Sat Mar 08 2025", Time: "10:00-12:00", Title: "Drop-in", Places: "0/3"},
		},
	}
	notes := map[string]string{rowKey("Sat Mar 01 2025", "10:00-12:00", "Drop-in"): "bring keys"}

	values := buildScheduleValues(schedule, notes)

	require.Len(t, values, 5)
	assert.Empty(t, values[0])
	assert.Empty(t, values[1])
	assert.Equal(t, []interface{}{"Date", "Time", "Shift", "Location", "Places", "Volunteer 1", "Volunteer 2", "Notes"}, values[2])
	assert.Equal(t, []interface{}{"Sat Mar 01 2025", "10:00-12:00", "Drop-in", "", "2/3", "Alice", "Bob", "bring keys"}, values[3])
	assert.Equal(t, []interface{}{"Sat Mar 08 2025", "10:00-12:00", "Drop-in", "", "0/3", "", "", ""}, values[4])
}

func TestExistingNotes(t *testing.T) {
	existing := [][]interface{}{
		{},
		{},
		{"Date", "Time", "Shift", "Location", "Places", "Volunteer 1", "Notes"},
		{"Sat Mar 01 2025", "10:00-12:00", "Drop-in", "", "1/3", "Alice", "bring keys"},
		{"Sat Mar 08 2025", "10:00-12:00", "Drop-in", "", "0/3"},
	}

	notes := existingNotes(existing)

	assert.Equal(t, map[string]string{rowKey("Sat Mar 01 2025", "10:00-12:00", "Drop-in"): "bring keys"}, notes)
	assert.Empty(t, existingNotes(nil))
	assert.Empty(t, existingNotes([][]interface{}{{}, {}, {"Date", "Team lead"}}))
}
