package models

// FileRecord is the normalized leaf entry streamed to the crawl consumer
// and published to the records topic. Produced only for non-directory
// entries; Path is the full share-relative path with escaped name segments.
type FileRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	PickCode    string `json:"pick_code,omitempty"`
	CreateTime  int64  `json:"create_time,omitempty"`
	ModifyTime  int64  `json:"modify_time,omitempty"`
	ShareCode   string `json:"share_code"`
	ReceiveCode string `json:"receive_code"`
}
