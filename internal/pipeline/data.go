package pipeline

import (
	"encoding/json"
	"fmt"
)

// StatusData is the typed view of a status record's open data bag. Each
// status kind carries its own variant; all variants serialize to the opaque
// jsonb data column so the storage format stays flat.
type StatusData interface {
	// Site returns the site identifier the record is scoped to, or "" when
	// the record carries no site.
	Site() string
}

// EngagementData is the data bag for prospecting, interviewing and
// offer_made records.
type EngagementData struct {
	SiteID string `json:"site,omitempty"`
}

func (d *EngagementData) Site() string { return d.SiteID }

// HiredData is the data bag for hired records. PreviousStatus points at the
// employer's prior record when the hire lands at a different site than the
// one that record was scoped to; in that case the prior record stays current
// until its own site is invalidated.
type HiredData struct {
	SiteID         string `json:"site"`
	PositionTitle  string `json:"positionTitle,omitempty"`
	StartDate      string `json:"startDate,omitempty"`
	PreviousStatus string `json:"previousStatus,omitempty"`
}

func (d *HiredData) Site() string { return d.SiteID }

// ArchiveReasonROSComplete marks an archive triggered by return-of-service
// completion. Such archives do not withdraw the participant from the program.
const ArchiveReasonROSComplete = "rosComplete"

// ArchivedData is the data bag for archived records.
type ArchivedData struct {
	SiteID      string `json:"site,omitempty"`
	FinalStatus string `json:"final_status,omitempty"`
	Previous    Status `json:"previous,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (d *ArchivedData) Site() string { return d.SiteID }

// RejectedData is the data bag for rejected records.
type RejectedData struct {
	SiteID      string `json:"site,omitempty"`
	FinalStatus string `json:"final_status,omitempty"`
}

func (d *RejectedData) Site() string { return d.SiteID }

// AckData is the data bag for the two acknowledgement statuses. RefStatusID
// and RefStatus point at the record the acknowledgement was raised for.
// HiddenForUserIDs lists users who dismissed the notification card.
type AckData struct {
	SiteID           string   `json:"site,omitempty"`
	FinalStatus      string   `json:"final_status,omitempty"`
	RefStatusID      string   `json:"refStatusId,omitempty"`
	RefStatus        Status   `json:"refStatus,omitempty"`
	HiddenForUserIDs []string `json:"hiddenForUserIds,omitempty"`
}

func (d *AckData) Site() string { return d.SiteID }

// dataSite reads the site off a possibly-nil data bag.
func dataSite(d StatusData) string {
	if d == nil {
		return ""
	}
	return d.Site()
}

// encodeData serializes a data bag for the jsonb column. A nil bag encodes
// as an empty object.
func encodeData(d StatusData) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// decodeData deserializes the jsonb column into the variant matching status.
func decodeData(status Status, raw []byte) (StatusData, error) {
	var d StatusData
	switch status {
	case StatusHired:
		d = &HiredData{}
	case StatusArchived:
		d = &ArchivedData{}
	case StatusRejected:
		d = &RejectedData{}
	case StatusPendingAck, StatusRejectAck:
		d = &AckData{}
	default:
		d = &EngagementData{}
	}
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", status, err)
	}
	return d, nil
}
