package bootstrapper

const MetricsIndexName = "metrics_index"

/**
 * The id is the composite key metric_name;downsampling;entity_id;time_bucket
 * Column values live under "columns" and are mapped dynamically.
 */
var metricsIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"metric_name": map[string]interface{}{
				"type": "keyword",
			},
			"entity_id": map[string]interface{}{
				"type": "keyword",
			},
			"downsampling": map[string]interface{}{
				"type": "keyword",
			},
			"time_bucket": map[string]interface{}{
				"type": "long",
			},
			"columns": map[string]interface{}{
				"type":    "object",
				"dynamic": true,
			},
		},
	},
}
