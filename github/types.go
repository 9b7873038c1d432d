package github

// Entry describes one file or directory returned by the contents API.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
	HTMLURL     string `json:"html_url,omitempty"`
}

// IsFile reports whether the entry is a regular file.
func (e Entry) IsFile() bool {
	return e.Type == "file"
}

// File is a decoded file: its descriptor plus raw bytes.
type File struct {
	Entry
	Content []byte
}

// Commit is the commit created by a write or delete.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	HTMLURL string `json:"html_url,omitempty"`
}

// WriteResult is GitHub's response to a create, update or delete. Content
// is nil after a delete.
type WriteResult struct {
	Content *Entry `json:"content"`
	Commit  Commit `json:"commit"`
}

type fileResponse struct {
	Entry
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}
