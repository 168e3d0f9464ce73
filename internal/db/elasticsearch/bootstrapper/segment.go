package bootstrapper

const SegmentIndexName = "segment_index"

/**
 * The id is the composite segment id, e.g. 3.4.5
 */
var segmentIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"segment_id": map[string]interface{}{
				"type": "keyword",
			},
			"trace_ids": map[string]interface{}{
				"type": "keyword",
			},
			"service_id": map[string]interface{}{
				"type": "integer",
			},
			"service_instance_id": map[string]interface{}{
				"type": "integer",
			},
			"endpoint_id": map[string]interface{}{
				"type": "integer",
			},
			"endpoint_name": map[string]interface{}{
				"type": "keyword",
			},
			"start_time": map[string]interface{}{
				"type": "date",
			},
			"end_time": map[string]interface{}{
				"type": "date",
			},
			"latency": map[string]interface{}{
				"type": "long",
			},
			"is_error": map[string]interface{}{
				"type": "boolean",
			},
			"time_bucket": map[string]interface{}{
				"type": "long",
			},
			"data_binary": map[string]interface{}{
				"type": "binary",
			},
		},
	},
}
