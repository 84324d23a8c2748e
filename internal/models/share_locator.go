package models

// ShareLocator identifies the shared directory tree being crawled.
// A share is addressed by a (share_code, receive_code) pair instead of
// full account credentials; RootID is the directory the crawl starts from
// ("0" is the share root).
type ShareLocator struct {
	ShareCode   string `json:"share_code"`
	ReceiveCode string `json:"receive_code"`
	RootID      string `json:"root_id"`
}
