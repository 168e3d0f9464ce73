package storage

// SegmentRecord is the searchable summary of one committed segment.
type SegmentRecord struct {
	Id                string   `json:"_id"`
	SegmentID         string   `json:"segment_id"`
	TraceIDs          []string `json:"trace_ids"`
	ServiceID         int32    `json:"service_id"`
	ServiceInstanceID int32    `json:"service_instance_id"`
	EndpointID        int32    `json:"endpoint_id"`
	EndpointName      string   `json:"endpoint_name"`
	StartTime         int64    `json:"start_time"`
	EndTime           int64    `json:"end_time"`
	Latency           int64    `json:"latency"`
	IsError           bool     `json:"is_error"`
	TimeBucket        int64    `json:"time_bucket"`
	DataBinary        []byte   `json:"data_binary"`
}
