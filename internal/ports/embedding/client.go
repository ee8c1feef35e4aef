// Package embedding talks to the face model server that detects faces and
// computes descriptors for camera frames.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultBaseURL = "http://localhost:8000"

// Client implements face.Detector and face.Extractor over HTTP.
type Client struct {
	baseURL      string
	modelVersion string
	client       *http.Client
}

// NewClient creates a client. When modelVersion is set, descriptors produced by
// any other model version are rejected as extraction failures.
func NewClient(baseURL, modelVersion string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		modelVersion: modelVersion,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type detection struct {
	Embedding []float32    `json:"embedding,omitempty"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	Keypoints [][2]float64 `json:"kps,omitempty"`
	DetScore  float64      `json:"det_score"`
}

type faceResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []detection `json:"faces"`
	Model      string      `json:"model"`
}

// DetectLandmarks returns the most confident face, or nil when none was found.
func (c *Client) DetectLandmarks(ctx context.Context, frame face.Frame) (*face.Landmarks, error) {
	resp, err := c.post(ctx, "/detect/face", frame.Data)
	if err != nil {
		return nil, err
	}
	best := bestFace(resp.Faces)
	if best == nil {
		return nil, nil
	}

	lm := &face.Landmarks{Confidence: best.DetScore}
	copy(lm.Box[:], best.BBox)
	for _, kp := range best.Keypoints {
		lm.Points = append(lm.Points, face.Point{X: kp[0], Y: kp[1]})
	}
	return lm, nil
}

// ExtractDescriptor returns the L2-normalized descriptor of the most confident face.
func (c *Client) ExtractDescriptor(ctx context.Context, frame face.Frame) (model.FaceDescriptor, error) {
	resp, err := c.post(ctx, "/embed/face", frame.Data)
	if err != nil {
		return nil, err
	}
	if c.modelVersion != "" && resp.Model != c.modelVersion {
		return nil, fmt.Errorf("%w: model %q, want %q", face.ErrExtraction, resp.Model, c.modelVersion)
	}

	best := bestFace(resp.Faces)
	if best == nil || len(best.Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", face.ErrExtraction)
	}
	return face.Normalize(best.Embedding), nil
}

func bestFace(faces []detection) *detection {
	var best *detection
	for i := range faces {
		if best == nil || faces[i].DetScore > best.DetScore {
			best = &faces[i]
		}
	}
	return best
}

func (c *Client) post(ctx context.Context, endpoint string, image []byte) (*faceResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", http.DetectContentType(image))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The server could not decode or analyse the image.
		return nil, fmt.Errorf("%w: %s", face.ErrExtraction, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("model server error (status %d): %s", resp.StatusCode, string(body))
	}

	var out faceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}
