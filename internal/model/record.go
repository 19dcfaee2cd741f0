package model

// Record is one signal-quality measurement as delivered by the origin,
// either through a history page or a live chunk.
type Record struct {
	ID                       int64    `json:"id"`
	EQ                       *string  `json:"eq"`
	Direction                *string  `json:"direction"`
	Time                     *string  `json:"time"`
	Latitude                 *float64 `json:"latitude"`
	Longitude                *float64 `json:"longitude"`
	ServingCellSSBRSRP       *float64 `json:"serving_cell_ssb_rsrp"`
	ServingCellSSBSNR        *float64 `json:"serving_cell_ssb_snr"`
	MultiRATConnectivityMode *string  `json:"multi_rat_connectivity_mode"`
}

// HasTime reports whether the record carries a timestamp.
func (r Record) HasTime() bool {
	return r.Time != nil
}

// HasLocation reports whether the record can be placed on a map.
func (r Record) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// TimeString returns the timestamp or "" when absent.
func (r Record) TimeString() string {
	if r.Time == nil {
		return ""
	}
	return *r.Time
}

// PageResult is one page of the history endpoint.
// MaxID is the snapshot boundary: the highest record id that existed when
// page 1 of the run was requested.
type PageResult struct {
	Data       []Record `json:"data"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
	MaxID      int64    `json:"max_id"`
}

// ChunkType is the envelope type carrying a live batch.
const ChunkType = "chunk"

// ChunkEnvelope is the live feed message wrapper.
type ChunkEnvelope struct {
	Type string   `json:"type"`
	Data []Record `json:"data"`
}
