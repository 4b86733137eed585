package competitionapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/dhowden/tag"
)

// Metadata はアップロード音源のタグ情報
type Metadata struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Format   string `json:"format,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// ReadMetadata reads ID3/MP4/FLAC/Ogg tags and rewinds r.
func ReadMetadata(r io.ReadSeeker) (Metadata, error) {
	m, err := tag.ReadFrom(r)
	if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
		return Metadata{}, fmt.Errorf("failed to rewind audio: %w", seekErr)
	}
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Title:    m.Title(),
		Artist:   m.Artist(),
		Album:    m.Album(),
		Format:   string(m.Format()),
		FileType: string(m.FileType()),
	}, nil
}

// PerformanceUpload is a performance audio submission.
type PerformanceUpload struct {
	CompetitionID string
	Title         string
	Artist        string
	FileName      string
	Audio         io.ReadSeeker
}

// SubmitResult is the server response to a submission.
type SubmitResult struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// SubmitPerformance uploads the audio as multipart form data. Empty title and
// artist are filled from the file's tags when available.
func (c *Client) SubmitPerformance(ctx context.Context, upload PerformanceUpload) (*SubmitResult, error) {
	if upload.Audio == nil {
		return nil, fmt.Errorf("submit performance: no audio")
	}

	if upload.Title == "" || upload.Artist == "" {
		if meta, err := ReadMetadata(upload.Audio); err == nil {
			if upload.Title == "" {
				upload.Title = meta.Title
			}
			if upload.Artist == "" {
				upload.Artist = meta.Artist
			}
		}
	}
	if upload.Title == "" {
		upload.Title = filepath.Base(upload.FileName)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := map[string]string{
		"competitionId": upload.CompetitionID,
		"title":         upload.Title,
		"artist":        upload.Artist,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", key, err)
		}
	}
	part, err := writer.CreateFormFile("audio", filepath.Base(upload.FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to create audio part: %w", err)
	}
	if _, err := io.Copy(part, upload.Audio); err != nil {
		return nil, fmt.Errorf("failed to copy audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/competitions/submit-performance", &body)
	if err != nil {
		return nil, &NetworkError{Op: "submit performance", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result SubmitResult
	if err := c.do("submit performance", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
