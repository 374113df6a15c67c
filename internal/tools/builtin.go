package tools

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Names of the built-in tools.
const (
	SwitchVoiceName           = "switchVoice"
	ReportObjectDetectionName = "reportObjectDetection"
)

// VoiceSwitcher restarts the session with another persona. Implementations
// must not wait for the restart to finish; the call happens while the current
// session is still dispatching events.
type VoiceSwitcher interface {
	SwitchVoice(id string) error
}

// SwitchVoice returns the switchVoice tool. The requested voiceId is resolved
// against known with m, so near-miss spellings from speech still land on a
// configured persona.
func SwitchVoice(known []string, m *Matcher, sw VoiceSwitcher) Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        SwitchVoiceName,
			Description: "Changes the assistant's current voice persona.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"voiceId": {Type: genai.TypeString, Enum: known},
				},
				Required: []string{"voiceId"},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			want, _ := args["voiceId"].(string)
			if want == "" {
				return nil, fmt.Errorf("voiceId is required")
			}
			id, _, ok := m.Match(want, known)
			if !ok {
				return nil, fmt.Errorf("unknown voice %q", want)
			}
			if err := sw.SwitchVoice(id); err != nil {
				return nil, err
			}
			return map[string]any{"result": "ok", "voiceId": id}, nil
		},
	}
}

// Highlight is a region of the camera frame the model reported.
type Highlight struct {
	Label               string
	X, Y, Width, Height float64
}

// ReportObjectDetection returns the reportObjectDetection tool. Every
// accepted report is passed to sink.
func ReportObjectDetection(sink func(Highlight)) Tool {
	num := &genai.Schema{Type: genai.TypeNumber}
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        ReportObjectDetectionName,
			Description: "Reports the location of a detected object.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label":  {Type: genai.TypeString},
					"x":      num,
					"y":      num,
					"width":  num,
					"height": num,
				},
				Required: []string{"label", "x", "y", "width", "height"},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			h := Highlight{}
			h.Label, _ = args["label"].(string)
			for key, dst := range map[string]*float64{"x": &h.X, "y": &h.Y, "width": &h.Width, "height": &h.Height} {
				v, ok := number(args[key])
				if !ok {
					return nil, fmt.Errorf("%s must be a number", key)
				}
				*dst = v
			}
			sink(h)
			return nil, nil
		},
	}
}

// number accepts the numeric types a JSON decoder may produce.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
