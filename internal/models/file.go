package models

import "time"

// FileAsset is the payload for uploaded files. Data holds the raw file
// contents until the upload has been delivered; it is base64-encoded in
// JSON form.
type FileAsset struct {
	ID          UUID   `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"data,omitempty"`
	UploadedAt  int64  `json:"uploaded_at"`
	ModifiedAt  int64  `json:"modified_at"`
}

// UploadedAtTime returns UploadedAt as time.Time.
func (f *FileAsset) UploadedAtTime() time.Time {
	return time.Unix(f.UploadedAt, 0)
}
