package api

import "github.com/samcharles93/xload/internal/aperture"

type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

type ErrorResponse struct {
	Error ResponseError `json:"error"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ApertureResponse is one aperture. SourceIndex is the record position in
// the source table.
type ApertureResponse struct {
	Index       int    `json:"index"`
	Addr        uint64 `json:"addr"`
	Size        uint64 `json:"size"`
	Source      string `json:"source"`
	SourceIndex int    `json:"source_index"`
}

func apertureResponse(idx int, e aperture.Entry) ApertureResponse {
	return ApertureResponse{
		Index:       idx,
		Addr:        e.Addr,
		Size:        e.Size,
		Source:      e.Source.String(),
		SourceIndex: e.Index,
	}
}

type ReserveRequest struct {
	Flags uint32 `json:"flags"`
	Size  uint64 `json:"size"`
}

type ReserveResponse struct {
	Bank int    `json:"bank"`
	Size uint64 `json:"size"`
}

type ReleaseRequest struct {
	Bank int    `json:"bank"`
	Size uint64 `json:"size"`
}

type BitstreamResponse struct {
	DesignName      string `json:"design_name"`
	PartName        string `json:"part_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	BitstreamLength uint32 `json:"bitstream_length"`
}
