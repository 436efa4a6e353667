package gcp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/engine"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

// SpeechTranscriber implements engine.Transcriber on the GCP Speech-to-Text
// long-running API.
type SpeechTranscriber struct {
	log        *logger.Logger
	client     *speech.Client
	maxRetries int
}

func NewSpeechTranscriber(ctx context.Context, baseLog *logger.Logger) (*SpeechTranscriber, error) {
	c, err := speech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &SpeechTranscriber{
		log:        baseLog.With("service", "SpeechTranscriber"),
		client:     c,
		maxRetries: 4,
	}, nil
}

func (s *SpeechTranscriber) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *SpeechTranscriber) Transcribe(ctx context.Context, audio io.Reader, hints engine.Hints) (*engine.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	content, err := io.ReadAll(audio)
	if err != nil {
		return nil, engine.TransientFailure("read audio artifact", err)
	}
	if len(content) == 0 {
		return nil, engine.PermanentFailure("empty audio artifact", nil)
	}

	lang := hints.Language
	if lang == "" {
		lang = "en-US"
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               lang,
			Encoding:                   inferSpeechEncoding(hints.MIMEType),
			SampleRateHertz:            int32(max0(hints.SampleRateHertz)),
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	}

	resp, err := s.retryLR(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, classifySpeechError(err)
	}

	tr := parseSpeechResponse(resp)
	tr.Language = lang
	if strings.TrimSpace(tr.Text) == "" {
		return nil, engine.PermanentFailure("no speech recognized", nil)
	}
	return tr, nil
}

func inferSpeechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// parseSpeechResponse flattens the API results into transcript text plus
// ten-second segments built from word offsets.
func parseSpeechResponse(resp *speechpb.LongRunningRecognizeResponse) *engine.Transcript {
	out := &engine.Transcript{}
	if resp == nil || len(resp.Results) == 0 {
		return out
	}

	var full strings.Builder
	var confSum float64
	var confN int
	segs := []types.Segment{}
	var cur *types.Segment
	var curWords []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.Join(curWords, " ")
		if cur.Text != "" {
			segs = append(segs, *cur)
		}
		cur = nil
		curWords = nil
	}

	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(strings.TrimSpace(alt.Transcript))
		if alt.Confidence > 0 {
			confSum += float64(alt.Confidence)
			confN++
		}

		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			ws := durToSec(w.StartTime)
			we := durToSec(w.EndTime)
			if cur != nil && ws-cur.Start >= 10 {
				flush()
			}
			if cur == nil {
				cur = &types.Segment{Start: ws, End: we}
			}
			curWords = append(curWords, w.Word)
			if we > cur.End {
				cur.End = we
			}
		}
	}
	flush()

	out.Text = strings.TrimSpace(full.String())
	if confN > 0 {
		out.Confidence = confSum / float64(confN)
	}
	if len(segs) == 0 && out.Text != "" {
		segs = []types.Segment{{Text: out.Text}}
	}
	out.Segments = segs
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

func classifySpeechError(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
		return engine.TransientFailure("speech service unavailable", err)
	case codes.InvalidArgument:
		return engine.PermanentFailure("audio rejected by speech service", err)
	default:
		return engine.TransientFailure("speech recognize failed", err)
	}
}

func (s *SpeechTranscriber) retryLR(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		s.log.Warn("speech call failed, retrying", "attempt", attempt+1, "error", err)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

func max0(x int) int {
	if x < 0 {
		return 0
	}
	return x
}
