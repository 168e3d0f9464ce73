package model

type GetResponse struct {
	Index  string                 `json:"_index"`
	ID     string                 `json:"_id"`
	Found  bool                   `json:"found"`
	Source map[string]interface{} `json:"_source"`
}

type MultiGetResponse struct {
	Docs []GetResponse `json:"docs"`
}
