package model

import "time"

// Record is an activity log entry. TaskName is captured when the record is
// written and is never re-resolved from TaskID.
//
// Record is the shape kept in the local mirror; RecordRow is the backend row.
type Record struct {
	ID       int64     `json:"id,omitempty"`
	TaskID   *int64    `json:"taskId"`
	TaskName string    `json:"taskName"`
	Score    float64   `json:"score"`
	Note     string    `json:"note"`
	Date     time.Time `json:"date"`
}

type RecordRow struct {
	ID       int64     `json:"id,omitempty"`
	TaskID   *int64    `json:"task_id"`
	TaskName string    `json:"task_name"`
	Score    float64   `json:"score"`
	Note     string    `json:"note"`
	Date     time.Time `json:"date"`
}

func (r RecordRow) Record() Record {
	return Record{
		ID:       r.ID,
		TaskID:   r.TaskID,
		TaskName: r.TaskName,
		Score:    r.Score,
		Note:     r.Note,
		Date:     r.Date,
	}
}

func (r Record) Row() RecordRow {
	return RecordRow{
		ID:       r.ID,
		TaskID:   r.TaskID,
		TaskName: r.TaskName,
		Score:    r.Score,
		Note:     r.Note,
		Date:     r.Date,
	}
}
