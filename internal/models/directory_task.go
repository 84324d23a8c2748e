package models

// DirectoryTask is one unit of enumeration work: a single paginated listing
// call against one directory at one offset. Immutable once created and
// consumed exactly once.
type DirectoryTask struct {
	DirID      string `json:"dir_id"`
	PathPrefix string `json:"path_prefix"`
	Offset     int    `json:"offset"`
}
