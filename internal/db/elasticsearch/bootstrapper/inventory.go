package bootstrapper

const InventoryIndexName = "inventory_index"

/**
 * Holds two kinds of documents: "name" documents with id name_<sha256 of scope;parent;name> and
 * "claim" documents with id claim_<scope>_<entity_id>.
 */
var inventoryIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"kind": map[string]interface{}{
				"type": "keyword",
			},
			"scope": map[string]interface{}{
				"type": "keyword",
			},
			"parent_id": map[string]interface{}{
				"type": "integer",
			},
			"name": map[string]interface{}{
				"type": "keyword",
			},
			"name_key": map[string]interface{}{
				"type": "keyword",
			},
			"entity_id": map[string]interface{}{
				"type": "integer",
			},
			"registered_at": map[string]interface{}{
				"type": "date",
			},
		},
	},
}
