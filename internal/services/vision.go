package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// VisionService handles direct API calls to an OpenAI-compatible vision
// endpoint, used for image uploads and scanned PDFs that yield no text.
type VisionService struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewVisionService creates a new vision service client.
func NewVisionService(apiKey, baseURL, model string) *VisionService {
	if baseURL == "" {
		baseURL = "https://open.bigmodel.cn/api/paas/v4/"
	}
	// Ensure baseURL ends with /
	if baseURL != "" && baseURL[len(baseURL)-1] != '/' {
		baseURL = baseURL + "/"
	}
	if model == "" {
		model = "glm-4.5v"
	}

	return &VisionService{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 300 * time.Second, // 5 minutes timeout
		},
	}
}

// MessageContent represents a part of a message (text or image)
type MessageContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL or base64 data URI
type ImageURL struct {
	URL string `json:"url"`
}

// ChatMessage represents a message in the chat
type ChatMessage struct {
	Role    string           `json:"role"`
	Content []MessageContent `json:"content"`
}

// ThinkingConfig enables thinking mode
type ThinkingConfig struct {
	Type string `json:"type"`
}

// VisionRequest represents the request to the vision API
type VisionRequest struct {
	Model       string         `json:"model"`
	Messages    []ChatMessage  `json:"messages"`
	Thinking    ThinkingConfig `json:"thinking"`
	Stream      bool           `json:"stream"`
	Temperature float64        `json:"temperature"`
	TopP        float64        `json:"top_p"`
	MaxTokens   int            `json:"max_tokens"`
}

// VisionChoice represents a single choice in the response
type VisionChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// VisionResponse represents the response from the vision API
type VisionResponse struct {
	ID      string         `json:"id"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []VisionChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// AnalyzeImage analyzes a single image (from URL or base64 data URI)
func (s *VisionService) AnalyzeImage(ctx context.Context, imageDataURI string, prompt string) (string, error) {
	return s.AnalyzeMultipleImages(ctx, []string{imageDataURI}, prompt)
}

// AnalyzeMultipleImages analyzes multiple images in a single API call
func (s *VisionService) AnalyzeMultipleImages(ctx context.Context, imageDataURIs []string, prompt string) (string, error) {
	// Create content array with all images followed by the text prompt
	content := make([]MessageContent, 0, len(imageDataURIs)+1)

	// Add all images
	for _, imageURI := range imageDataURIs {
		content = append(content, MessageContent{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: imageURI,
			},
		})
	}

	// Add text prompt at the end
	content = append(content, MessageContent{
		Type: "text",
		Text: prompt,
	})

	// Create multimodal message with all images and text
	messages := []ChatMessage{
		{
			Role:    "user",
			Content: content,
		},
	}

	// Create request
	request := VisionRequest{
		Model:    s.model,
		Messages: messages,
		Thinking: ThinkingConfig{
			Type: "enabled",
		},
		Stream:      false,
		Temperature: 0.8,
		TopP:        0.6,
		MaxTokens:   16384,
	}

	// Marshal request
	reqBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal vision request: %w", err)
	}

	// Log payload size for debugging
	payloadSizeKB := len(reqBody) / 1024
	fmt.Fprintf(os.Stderr, "Vision API request: %d images, payload size: %d KB\n", len(imageDataURIs), payloadSizeKB)

	// Retry logic for transient failures
	maxRetries := 2
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			fmt.Fprintf(os.Stderr, "Retrying vision API call (attempt %d/%d)...\n", attempt+1, maxRetries+1)
			// Wait before retry
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}

		// Create HTTP request
		url := s.baseURL + "chat/completions"
		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
		if err != nil {
			lastErr = fmt.Errorf("create http request: %w", err)
			continue
		}

		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Title", "Studymate Vision")
		httpReq.Header.Set("Accept-Language", "en-US,en")

		// Execute request
		resp, err := s.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("execute vision request: %w", err)
			continue
		}

		// Read response body
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response body: %w", err)
			continue
		}

		// Check status code
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("vision api error: status=%d, body=%s", resp.StatusCode, string(body))
			// Don't retry 4xx errors (client errors)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return "", lastErr
			}
			continue
		}

		// Parse response
		var visionResp VisionResponse
		if err := json.Unmarshal(body, &visionResp); err != nil {
			lastErr = fmt.Errorf("unmarshal vision response: %w, body=%s", err, string(body))
			continue
		}

		// Extract content
		if len(visionResp.Choices) == 0 {
			lastErr = fmt.Errorf("vision api returned no choices, response: %s", string(body))
			continue
		}

		result := visionResp.Choices[0].Message.Content
		if result == "" {
			// Log the full response for debugging
			fmt.Fprintf(os.Stderr, "WARNING: Vision API returned empty content. Response: %s\n", string(body))
			lastErr = fmt.Errorf("vision api returned empty content (attempt %d/%d)", attempt+1, maxRetries+1)
			continue
		}

		// Success!
		return result, nil
	}

	// All retries exhausted
	return "", fmt.Errorf("vision api failed after %d attempts: %w", maxRetries+1, lastErr)
}
