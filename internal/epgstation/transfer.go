package epgstation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"epg-encoder/internal/progress"
)

const chunkSize = 32 * 1024

// DownloadVideoFile streams video file id into dst, offering a
// TransferProgress to sink after every chunk. The response must declare a
// Content-Length. On error the partially written dst is left in place.
func (c *Client) DownloadVideoFile(ctx context.Context, id VideoFileID, dst string, sink progress.Sink[TransferProgress]) error {
	if sink == nil {
		sink = progress.Discard[TransferProgress]()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/videos/"+strconv.FormatUint(uint64(id), 10), ""), nil)
	if err != nil {
		return err
	}
	// A transparently gunzipped body loses its Content-Length.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download video file %d: %w", id, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return err
	}
	if resp.ContentLength < 0 {
		return fmt.Errorf("download video file %d: %w", id, ErrMissingContentLength)
	}
	total := uint64(resp.ContentLength)

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	current, err := copyChunks(f, resp.Body, func(n uint64) {
		sink.TrySend(TransferProgress{CurrentBytes: n, TotalBytes: total})
	})
	// The transport caps the body at Content-Length and reports an early
	// close as io.ErrUnexpectedEOF.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return fmt.Errorf("download video file %d: %w", id, err)
	}
	if err != nil || current != total {
		f.Close()
		return fmt.Errorf("download video file %d: got %d of %d bytes: %w", id, current, total, ErrShortBody)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// copyChunks appends r to w chunk by chunk and calls onChunk with the running
// total after each write.
func copyChunks(w io.Writer, r io.Reader, onChunk func(uint64)) (uint64, error) {
	buf := make([]byte, chunkSize)
	var current uint64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return current, werr
			}
			current += uint64(n)
			onChunk(current)
		}
		if errors.Is(rerr, io.EOF) {
			return current, nil
		}
		if rerr != nil {
			return current, rerr
		}
	}
}

// UploadVideoFile posts the file at path as a new video file of
// prop.RecordedID. The multipart body is streamed; each chunk read from disk
// offers a TransferProgress to sink with the file size as total. There is
// no retry and no resume.
func (c *Client) UploadVideoFile(ctx context.Context, path string, prop VideoFileProperty, sink progress.Sink[TransferProgress]) error {
	if sink == nil {
		sink = progress.Discard[TransferProgress]()
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	body := &countingReader{r: f, total: uint64(st.Size()), sink: sink}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		pw.CloseWithError(writeUploadForm(mw, prop, body))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/videos/upload", ""), pr)
	if err != nil {
		pr.Close()
		<-written
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	// Unblocks the writer if the transport stopped reading early.
	pr.Close()
	<-written
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return checkStatus(req, resp)
}

func writeUploadForm(mw *multipart.Writer, prop VideoFileProperty, file io.Reader) error {
	fields := []param{
		{"recordedId", strconv.FormatUint(uint64(prop.RecordedID), 10)},
		{"parentDirectoryName", prop.ParentDirectoryName},
		{"viewName", prop.ViewName},
		{"fileType", prop.FileType},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.key, f.value); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", prop.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}

	// subDirectory trails the file part and is only sent when set.
	if prop.SubDirectory != "" {
		if err := mw.WriteField("subDirectory", prop.SubDirectory); err != nil {
			return err
		}
	}
	return mw.Close()
}

// countingReader reports cumulative bytes read from r.
type countingReader struct {
	r     io.Reader
	sent  uint64
	total uint64
	sink  progress.Sink[TransferProgress]
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += uint64(n)
		c.sink.TrySend(TransferProgress{CurrentBytes: c.sent, TotalBytes: c.total})
	}
	return n, err
}
