package feed

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode extracts the batch of a chunk envelope. Any other message, including
// a chunk whose data is not an array, yields a *DecodeError.
func Decode(payload []byte) ([]model.Record, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}
	if env.Type != model.ChunkType {
		return nil, &DecodeError{Reason: "unexpected type " + strconv.Quote(env.Type)}
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '[' {
		return nil, &DecodeError{Reason: "chunk data is not an array"}
	}

	var batch []model.Record
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, &DecodeError{Reason: "invalid chunk records", Err: err}
	}
	if batch == nil {
		batch = []model.Record{}
	}
	return batch, nil
}
