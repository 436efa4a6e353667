package openai

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"

	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/engine"
	"github.com/yungbote/minutes-backend/internal/pkg/httpx"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

// WhisperTranscriber implements engine.Transcriber on the OpenAI audio
// transcription endpoint.
type WhisperTranscriber struct {
	log    *logger.Logger
	client Client
}

func NewWhisperTranscriber(client Client, baseLog *logger.Logger) *WhisperTranscriber {
	return &WhisperTranscriber{
		log:    baseLog.With("service", "WhisperTranscriber"),
		client: client,
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio io.Reader, hints engine.Hints) (*engine.Transcript, error) {
	res, err := t.client.TranscribeAudio(ctx, "audio"+extForMIME(hints.MIMEType), audio, hints.Language)
	if err != nil {
		return nil, classifyOpenAIError("whisper transcription failed", err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, engine.PermanentFailure("no speech recognized", nil)
	}

	out := &engine.Transcript{
		Text:     strings.TrimSpace(res.Text),
		Language: res.Language,
	}

	var confSum float64
	var confN int
	for _, s := range res.Segments {
		txt := strings.TrimSpace(s.Text)
		if txt == "" {
			continue
		}
		out.Segments = append(out.Segments, types.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  txt,
		})
		// avg_logprob is a log probability; exp maps it into [0,1].
		if s.AvgLogprob != 0 {
			confSum += math.Exp(s.AvgLogprob)
			confN++
		}
	}
	if confN > 0 {
		out.Confidence = math.Min(confSum/float64(confN), 1)
	}
	if len(out.Segments) == 0 {
		out.Segments = []types.Segment{{Start: 0, End: res.Duration, Text: out.Text}}
	}
	return out, nil
}

func extForMIME(mimeType string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return ".wav"
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return ".mp3"
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus"):
		return ".ogg"
	case strings.Contains(m, "flac"):
		return ".flac"
	case strings.Contains(m, "m4a") || strings.Contains(m, "mp4"):
		return ".m4a"
	default:
		return ".wav"
	}
}

// classifyOpenAIError maps client errors onto the orchestrator's
// transient/permanent split: retryable HTTP statuses and network errors stay
// transient, non-retryable 4xx (bad request, auth) is permanent.
func classifyOpenAIError(reason string, err error) error {
	if httpx.IsRetryableError(err) {
		return engine.TransientFailure(reason, err)
	}
	var sc httpx.HTTPStatusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() >= 400 && sc.HTTPStatusCode() < 500 {
		return engine.PermanentFailure(reason, err)
	}
	return engine.TransientFailure(reason, err)
}
