package models

// Record is a resource record in presentation form.
type Record struct {
	Name  string `json:"name" binding:"required"`
	Type  string `json:"type" binding:"required"`
	TTL   int32  `json:"ttl"`
	Value string `json:"value" binding:"required"`
}

// RecordListResponse contains a list of records.
type RecordListResponse struct {
	Records []Record `json:"records"`
	Count   int      `json:"count"`
}

// NameListResponse lists the distinct owner names in the store.
type NameListResponse struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

// AliasChain is a CNAME together with a record owned by its target.
type AliasChain struct {
	Alias  Record `json:"alias"`
	Record Record `json:"record"`
}

// ChainListResponse contains the alias chains for a name and type.
type ChainListResponse struct {
	Chains []AliasChain `json:"chains"`
	Count  int          `json:"count"`
}
