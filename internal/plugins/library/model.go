// Package library keeps the table's shared reference shelf: links to
// rulebooks and handouts any player can open.
package library

// Link is one shelf entry. Date is milliseconds since the epoch.
type Link struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	AddedBy string `json:"addedBy"`
	Date    int64  `json:"date"`
}

// AddLinkRequest is the body of POST /api/v1/library.
type AddLinkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
