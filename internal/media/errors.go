package media

import "fmt"

// DownloadError is fatal to the job that triggered the download, never to the
// channel that enqueued it.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// SegmentationError is fatal to the job; the downloaded audio is unusable.
type SegmentationError struct {
	Path string
	Err  error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segment %s: %v", e.Path, e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }
