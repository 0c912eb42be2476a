package model

import "time"

// RequestStatus is the review state of a redemption request. Values outside
// the known constants are carried through unchanged.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Request asks to redeem a gift. GiftName is a snapshot taken at write time.
type Request struct {
	ID       int64         `json:"id,omitempty"`
	GiftID   *int64        `json:"giftId"`
	GiftName string        `json:"giftName"`
	Score    float64       `json:"score"`
	Status   RequestStatus `json:"status"`
	Date     time.Time     `json:"date"`
}

type RequestRow struct {
	ID       int64         `json:"id,omitempty"`
	GiftID   *int64        `json:"gift_id"`
	GiftName string        `json:"gift_name"`
	Score    float64       `json:"score"`
	Status   RequestStatus `json:"status"`
	Date     time.Time     `json:"date"`
}

func (r RequestRow) Request() Request {
	return Request{
		ID:       r.ID,
		GiftID:   r.GiftID,
		GiftName: r.GiftName,
		Score:    r.Score,
		Status:   r.Status,
		Date:     r.Date,
	}
}

func (r Request) Row() RequestRow {
	return RequestRow{
		ID:       r.ID,
		GiftID:   r.GiftID,
		GiftName: r.GiftName,
		Score:    r.Score,
		Status:   r.Status,
		Date:     r.Date,
	}
}
