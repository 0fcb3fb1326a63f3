package domain

type BatchItemType string

const (
	BatchItemFile    BatchItemType = "file"
	BatchItemURL     BatchItemType = "url"
	BatchItemYouTube BatchItemType = "youtube"
	BatchItemText    BatchItemType = "text"
)

// BatchItem is one entry of a mixed batch.
type BatchItem struct {
	Type  BatchItemType   `json:"type"`
	File  *FileDescriptor `json:"file,omitempty"`
	URL   string          `json:"url,omitempty"`
	Text  string          `json:"text,omitempty"`
	Title string          `json:"title,omitempty"`
}

// IngestRequest is the inbound shape; exactly one input field is expected.
// Routing precedence: files, urls, url, text_content, batch_items.
type IngestRequest struct {
	Files       []FileDescriptor  `json:"files,omitempty"`
	URLs        []string          `json:"urls,omitempty"`
	URL         string            `json:"url,omitempty"`
	TextContent string            `json:"text_content,omitempty"`
	Title       string            `json:"title,omitempty"`
	BatchItems  []BatchItem       `json:"batch_items,omitempty"`
	Options     ProcessingOptions `json:"options"`
}
