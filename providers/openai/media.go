package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/openmeet/ai-router/providers"
)

const (
	whisperModel       = "whisper-1"
	defaultVisionModel = "gpt-4-turbo-preview"
)

// Transcribe uploads an audio file to the Whisper endpoint. The verbose
// JSON response format is requested so timed segments come back.
func (a *Adapter) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	start := time.Now()

	audio, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, providers.NewInvalidRequestError(a.Type(), fmt.Sprintf("cannot open audio file: %v", err))
	}
	defer audio.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to build upload", 0, false, err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to read audio file", 0, false, err)
	}

	_ = writer.WriteField("model", whisperModel)
	_ = writer.WriteField("response_format", "verbose_json")
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	if req.Timestamps {
		_ = writer.WriteField("timestamp_granularities[]", "segment")
	}
	if err := writer.Close(); err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to finalize upload", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", a.config.Organization)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUnavailable, "transcription request failed", 0, true, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "failed to read response", resp.StatusCode, true, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.errorFromResponse(resp.StatusCode, raw)
	}

	var whisperResp transcriptionResponse
	if err := json.Unmarshal(raw, &whisperResp); err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "failed to unmarshal response", resp.StatusCode, false, err)
	}

	segments := make([]providers.TranscriptionSegment, len(whisperResp.Segments))
	for i, s := range whisperResp.Segments {
		segments[i] = providers.TranscriptionSegment{
			ID:    s.ID,
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		}
	}

	return &providers.TranscriptionResponse{
		Text:     whisperResp.Text,
		Segments: segments,
		Language: whisperResp.Language,
		Duration: whisperResp.Duration,
		Provider: a.Type(),
		Model:    whisperModel,
		Elapsed:  time.Since(start),
	}, nil
}

// VisionCompletion sends the image inline as a base64 data URL.
func (a *Adapter) VisionCompletion(ctx context.Context, req *providers.VisionRequest) (*providers.VisionResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultVisionModel
	}

	imageData, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, providers.NewInvalidRequestError(a.Type(), fmt.Sprintf("cannot read image file: %v", err))
	}

	mediaType := mime.TypeByExtension(filepath.Ext(req.ImagePath))
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(imageData))

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(visionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []visionMessage{{
			Role: "user",
			Content: []visionContent{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	respBody, err := a.doJSON(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "failed to unmarshal response", 0, false, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "response contained no choices", 0, true, nil)
	}

	return &providers.VisionResponse{
		Content:  chatResp.Choices[0].Message.Content,
		Model:    chatResp.Model,
		Provider: a.Type(),
	}, nil
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

type visionRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []visionMessage `json:"messages"`
}

type visionMessage struct {
	Role    string          `json:"role"`
	Content []visionContent `json:"content"`
}

type visionContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}
