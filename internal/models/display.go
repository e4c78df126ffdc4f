package models

import "time"

// IconTag is the category used to pick a file icon.
type IconTag string

const (
	IconPDF        IconTag = "pdf"
	IconWord       IconTag = "word"
	IconPowerPoint IconTag = "powerpoint"
	IconText       IconTag = "text"
	IconMarkdown   IconTag = "markdown"
	IconGeneric    IconTag = "file"
)

// DisplayRow is one rendered staging entry.
type DisplayRow struct {
	Name          string    `json:"name"`
	FormattedSize string    `json:"formattedSize"`
	Icon          IconTag   `json:"icon"`
	Size          int64     `json:"size"`
	LastModified  time.Time `json:"lastModified"`
}

// DisplayState is everything needed to draw the staging list.
type DisplayState struct {
	Count int          `json:"count"`
	Rows  []DisplayRow `json:"rows"`
}

// NoticeKind distinguishes success from error notices.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is an inline status message that hides itself after ExpiresAt.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// UploadView is the full render state of the upload widget.
type UploadView struct {
	Staging     DisplayState `json:"staging"`
	DBName      string       `json:"dbName"`
	Busy        bool         `json:"busy"`
	SubmitLabel string       `json:"submitLabel"`
	Notice      *Notice      `json:"notice,omitempty"`
}
